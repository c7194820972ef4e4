// Package i18n 翻译面向用户的状态文本。英文原文即为键。
package i18n

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

const (
	EnUS = "en_US"
	ZhCN = "zh_CN"
)

var (
	codes   = []string{EnUS, ZhCN}
	matcher = language.NewMatcher([]language.Tag{
		language.AmericanEnglish,
		language.SimplifiedChinese,
	})
)

var tables = map[string]map[string]string{
	ZhCN: zhCN,
}

// Supported 返回支持的语言代码。
func Supported() []string {
	return append([]string(nil), codes...)
}

// Normalize 把任意语言标记（zh、zh-CN、zh_Hans、en-GB 等）映射到支持的语言代码，
// 无法识别时回退到 en_US。
func Normalize(lang string) string {
	lang = strings.TrimSpace(strings.ReplaceAll(lang, "_", "-"))
	if lang == "" {
		return EnUS
	}
	if _, err := language.Parse(lang); err != nil {
		return EnUS
	}
	_, idx := language.MatchStrings(matcher, lang)
	return codes[idx]
}

// T 返回 text 在 lang 下的翻译，缺失时返回原文。
func T(lang, text string) string {
	table, ok := tables[Normalize(lang)]
	if !ok {
		return text
	}
	if translated, ok := table[text]; ok {
		return translated
	}
	return text
}

// Tf 翻译格式串后再格式化。
func Tf(lang, format string, args ...any) string {
	return fmt.Sprintf(T(lang, format), args...)
}
