package i18n

var zhCN = map[string]string{
	"Invalid Blender":                      "无效的 Blender",
	"Already added this blender":           "已经添加过这个 Blender",
	"Verify Blender...":                    "正在校验 Blender...",
	"Verified Success: %s":                 "校验成功：%s",
	"Activated %s":                         "已激活 %s",
	"Activation failed: %s":                "激活失败：%s",
	"Another activation is in progress":    "另一个激活操作正在进行",
	"Blender executable not found":         "找不到 Blender 可执行文件",
	"Failed to save changes":               "保存更改失败",
	"Version":                              "版本",
	"Date":                                 "日期",
	"Hash":                                 "哈希",
	"Path":                                 "路径",
	"Invalid":                              "无效",
	"Updating":                             "更新中",
	"Activated":                            "已激活",
	"Active":                               "激活",
	"Are you sure to remove this blender?": "确定要移除这个 Blender 吗？",
	"Cancel":                               "取消",
	"Yes":                                  "是",
	"OK":                                   "确定",
	"Removed":                              "已移除",
	"Installation is active, use --force":  "该安装正处于激活状态，请使用 --force",
	"No Blender registered":                "尚未登记任何 Blender",
	"No active Blender":                    "没有激活的 Blender",
	"All Blender deactivated":              "已取消所有 Blender 的激活",
	"Language set to %s":                   "语言已设置为 %s",
	"Opened %s":                            "已打开 %s",
}
