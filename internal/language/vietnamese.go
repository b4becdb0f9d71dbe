// Package language detects whether a question is written in Vietnamese.
//
// Detection is a pure heuristic with no model calls: the same input always
// produces the same result, and ambiguous or empty input is reported as not
// Vietnamese. The prompt assembler uses the result to pick between the two
// response templates.
package language

import (
	"strings"
	"unicode"
)

// Detection thresholds. A text is Vietnamese when the ratio of Vietnamese
// letters among all letters reaches charThreshold, or the ratio of common
// Vietnamese function words among all words reaches wordThreshold.
const (
	charThreshold = 0.1
	wordThreshold = 0.2
)

// vietnameseChars holds every Vietnamese letter with diacritics plus đ.
// ASCII vowels are excluded on purpose; they carry no signal.
const vietnameseChars = "àáạảãâầấậẩẫăằắặẳẵèéẹẻẽêềếệểễìíịỉĩòóọỏõôồốộổỗơờớợởỡùúụủũưừứựửữỳýỵỷỹđ" +
	"ÀÁẠẢÃÂẦẤẬẨẪĂẰẮẶẲẴÈÉẸẺẼÊỀẾỆỂỄÌÍỊỈĨÒÓỌỎÕÔỒỐỘỔỖƠỜỚỢỞỠÙÚỤỦŨƯỪỨỰỬỮỲÝỴỶỸĐ"

var vietnameseCharSet = func() map[rune]bool {
	set := make(map[rune]bool, len(vietnameseChars))
	for _, r := range vietnameseChars {
		set[r] = true
	}
	return set
}()

// vietnameseCommonWords are high-frequency function words. A question built
// from unaccented Vietnamese ("diem chuan nganh kinh te") still tends to
// contain several of these.
var vietnameseCommonWords = map[string]bool{
	"và": true, "của": true, "có": true, "là": true, "trong": true,
	"để": true, "với": true, "được": true, "các": true, "một": true,
	"từ": true, "cho": true, "về": true, "như": true, "khi": true,
	"trên": true, "tại": true, "người": true, "này": true, "đó": true,
	"việc": true, "thì": true, "cũng": true, "theo": true, "sẽ": true,
	"đã": true, "sau": true, "nếu": true, "bằng": true, "những": true,
	"tôi": true, "bạn": true, "anh": true, "chị": true, "em": true,
	"chúng": true, "ta": true, "họ": true, "nó": true, "gì": true,
	"làm": true, "đi": true, "nói": true, "biết": true, "thấy": true,
	"nghĩ": true, "cần": true, "muốn": true, "không": true,
}

// IsVietnamese reports whether text is Vietnamese.
// Empty or letterless input returns false.
func IsVietnamese(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	var letters, vietLetters int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if vietnameseCharSet[r] {
			vietLetters++
		}
	}
	if letters > 0 && float64(vietLetters)/float64(letters) >= charThreshold {
		return true
	}

	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return false
	}
	var vietWords int
	for _, w := range words {
		if vietnameseCommonWords[strings.Trim(w, ".,!?;:\"'()")] {
			vietWords++
		}
	}
	return float64(vietWords)/float64(len(words)) >= wordThreshold
}

// typingFixes maps the "old style" tone placement produced by some input
// methods to the modern convention (òa -> oà, úy -> uý).
var typingFixes = [...][2]string{
	{"òa", "oà"}, {"óa", "oá"}, {"ỏa", "oả"}, {"õa", "oã"}, {"ọa", "oạ"},
	{"òe", "oè"}, {"óe", "oé"}, {"ỏe", "oẻ"}, {"õe", "oẽ"}, {"ọe", "oẹ"},
	{"ùy", "uỳ"}, {"úy", "uý"}, {"ủy", "uỷ"}, {"ũy", "uỹ"}, {"ụy", "uỵ"},
}

// Normalize canonicalizes Vietnamese text for retrieval: whitespace is
// collapsed and tone placement is unified. Safe to call on any language.
func Normalize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	for _, fix := range typingFixes {
		text = strings.ReplaceAll(text, fix[0], fix[1])
	}
	return text
}
