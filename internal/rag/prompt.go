package rag

import (
	"fmt"
	"strings"
)

// Prompt templates. There are exactly two, Vietnamese and English, each with
// a no-evidence and a with-evidence branch. Evidence content is inserted
// literally in numbered source blocks.

const vietnamesePreamble = `Bạn là một trợ lý AI chuyên về hướng nghiệp và giáo dục tại Việt Nam.
Hãy trả lời câu hỏi một cách chính xác, hữu ích và thân thiện bằng tiếng Việt.`

const vietnameseEvidenceIntro = `Dựa vào các thông tin sau đây để trả lời câu hỏi.
Nếu thông tin không đủ, hãy nói rõ điều đó.`

const englishPreamble = `You are an AI assistant specializing in career guidance and education counseling.
Answer the question accurately, helpfully and in a friendly tone.`

const englishEvidenceIntro = `Use the following sources to answer the question.
If the sources are insufficient, say so clearly.`

// BuildPrompt assembles the generation prompt from the question and the
// graded evidence, in Vietnamese or English.
func BuildPrompt(question string, docs []Document, vietnamese bool) string {
	var b strings.Builder

	if vietnamese {
		b.WriteString(vietnamesePreamble)
		b.WriteString("\n\n")
		if len(docs) > 0 {
			b.WriteString(vietnameseEvidenceIntro)
			b.WriteString("\n\n")
			for i, doc := range docs {
				fmt.Fprintf(&b, "[Nguồn %d - %s]:\n%s\n\n", i+1, sourceLabel(doc), doc.Content)
			}
		}
		fmt.Fprintf(&b, "Câu hỏi: %s\n\nTrả lời:", question)
		return b.String()
	}

	b.WriteString(englishPreamble)
	b.WriteString("\n\n")
	if len(docs) > 0 {
		b.WriteString(englishEvidenceIntro)
		b.WriteString("\n\n")
		for i, doc := range docs {
			fmt.Fprintf(&b, "[Source %d - %s]:\n%s\n\n", i+1, sourceLabel(doc), doc.Content)
		}
	}
	fmt.Fprintf(&b, "Question: %s\n\nAnswer:", question)
	return b.String()
}

// sourceLabel prefers the document title, then its source, then a generic
// marker, so every source block stays attributable.
func sourceLabel(doc Document) string {
	if doc.Title != "" {
		return doc.Title
	}
	if doc.Source != "" {
		return doc.Source
	}
	return "tài liệu"
}
