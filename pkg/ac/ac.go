package ac

import (
	"bytes"
	"strings"

	ahocorasick "github.com/anknown/ahocorasick"
)

// Matcher 基于Aho-Corasick自动机的多模式匹配, 大小写不敏感, nil表示没有关键词
type Matcher struct {
	m *ahocorasick.Machine
}

// readRunes 将字符串字典转换为rune切片数组, 用于Aho-Corasick算法的输入格式要求
func readRunes(dict []string) (runes [][]rune) {
	for _, word := range dict {
		word = strings.ToLower(word)       // 转换为小写，实现大小写不敏感匹配
		l := bytes.TrimSpace([]byte(word)) // 去除前后空白字符
		if len(l) == 0 {
			continue
		}
		runes = append(runes, bytes.Runes(l)) // 将字符串转换为rune切片，支持中文等多字节字符
	}
	return runes
}

// New 根据关键词字典构建自动机, 字典为空时返回nil
func New(dict []string) (*Matcher, error) {
	runes := readRunes(dict)
	if len(runes) == 0 {
		return nil, nil
	}
	m := new(ahocorasick.Machine)
	if err := m.Build(runes); err != nil { // 构建AC自动机的Trie树结构
		return nil, err
	}
	return &Matcher{m: m}, nil
}

// Search 多模式串搜索, stopImmediately为true时找到第一个匹配就停止
// 返回是否命中以及命中的关键词
func (a *Matcher) Search(text string, stopImmediately bool) (bool, []string) {
	// 空字典或空文本的边界情况处理
	if a == nil || len(text) == 0 {
		return false, nil
	}
	hits := a.m.MultiPatternSearch([]rune(strings.ToLower(text)), stopImmediately)
	if len(hits) == 0 {
		return false, nil
	}
	words := make([]string, 0, len(hits))
	for _, hit := range hits {
		words = append(words, string(hit.Word)) // 将匹配到的rune切片转换回字符串
	}
	return true, words
}
