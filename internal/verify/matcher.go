package verify

import (
	"regexp"
	"strings"
)

// Banner 是从一行输出中解析出的版本信息。
type Banner struct {
	Version    string
	BigVersion string
	BuildHash  string
	BuildDate  string
}

// Matcher 判断一行输出是否为版本横幅，并提取其中的元数据。
type Matcher interface {
	Match(line string) (Banner, bool)
}

// MatcherFunc 把普通函数适配为 Matcher。
type MatcherFunc func(line string) (Banner, bool)

func (f MatcherFunc) Match(line string) (Banner, bool) { return f(line) }

// blenderBanner 匹配形如 "Blender 4.2.0 (hash a51f293548ad built 2024-07-16 06:29:21)" 的行，
// 版本号后允许出现 Alpha、LTS 之类的后缀。
var blenderBanner = regexp.MustCompile(
	`^Blender\s+(\d+)\.(\d+)(?:\.(\d+))?(?:\s+[A-Za-z][\w-]*)*\s*\(\s*hash\s+([0-9A-Za-z]+)\s+built\s+(\d{4}-\d{2}-\d{2}(?:\s+\d{2}:\d{2}:\d{2})?)\s*\)`,
)

// BlenderMatcher 识别 Blender 启动时打印的版本横幅。
type BlenderMatcher struct{}

func (BlenderMatcher) Match(line string) (Banner, bool) {
	m := blenderBanner.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Banner{}, false
	}
	big := m[1] + "." + m[2]
	version := big
	if m[3] != "" {
		version += "." + m[3]
	}
	return Banner{
		Version:    version,
		BigVersion: big,
		BuildHash:  m[4],
		BuildDate:  strings.Join(strings.Fields(m[5]), " "),
	}, true
}

// scanBanner 逐行扫描输出，返回第一条匹配的横幅。
func scanBanner(output []byte, matcher Matcher) (Banner, bool) {
	for _, raw := range strings.Split(string(output), "\n") {
		line := strings.TrimSpace(strings.ToValidUTF8(raw, "�"))
		if line == "" {
			continue
		}
		if banner, ok := matcher.Match(line); ok {
			return banner, true
		}
	}
	return Banner{}, false
}
