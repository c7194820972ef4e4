package models

import "time"

// Installation 描述一个本地登记的 Blender 安装，Path 是唯一标识。
type Installation struct {
	Path       string    `json:"path"`                  // 可执行文件路径
	Version    string    `json:"version,omitempty"`     // 版本号，例如 4.2.0
	BigVersion string    `json:"big_version,omitempty"` // 主次版本号，例如 4.2
	BuildHash  string    `json:"build_hash,omitempty"`  // 构建哈希
	BuildDate  string    `json:"build_date,omitempty"`  // 构建日期
	IsValid    bool      `json:"is_valid"`              // 是否通过校验
	IsActive   bool      `json:"is_active"`             // 是否为当前激活的安装
	AddedAt    time.Time `json:"added_at"`              // 登记时间
	VerifiedAt time.Time `json:"verified_at,omitempty"` // 最近一次校验成功的时间
}

// ClearMetadata 清空由校验得到的派生字段。
func (i *Installation) ClearMetadata() {
	i.Version = ""
	i.BigVersion = ""
	i.BuildHash = ""
	i.BuildDate = ""
	i.IsValid = false
	i.VerifiedAt = time.Time{}
}

// CountActive 返回集合中处于激活状态的记录数量。
func CountActive(items []Installation) int {
	n := 0
	for _, item := range items {
		if item.IsActive {
			n++
		}
	}
	return n
}
