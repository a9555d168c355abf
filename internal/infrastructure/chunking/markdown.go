package chunking

import (
	"strings"
)

// Section is one "## question" block of a markdown knowledge file.
type Section struct {
	Question string
	Answer   string
}

// ParseMarkdownQA splits a knowledge file into its frontmatter and Q&A
// sections. Frontmatter is a leading block of "key: value" lines fenced by
// "---"; each "##" heading starts a new section.
func ParseMarkdownQA(content string) (map[string]string, []Section) {
	meta := map[string]string{}
	body := content

	if strings.HasPrefix(strings.TrimSpace(content), "---") {
		parts := strings.SplitN(strings.TrimSpace(content), "---", 3)
		if len(parts) == 3 {
			for _, line := range strings.Split(parts[1], "\n") {
				key, value, ok := strings.Cut(line, ":")
				if !ok {
					continue
				}
				if key = strings.TrimSpace(key); key != "" {
					meta[key] = strings.TrimSpace(value)
				}
			}
			body = parts[2]
		}
	}

	var sections []Section
	for _, block := range strings.Split(body, "##") {
		heading, answer, ok := strings.Cut(strings.TrimSpace(block), "\n")
		if !ok {
			continue
		}
		question := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(strings.TrimLeft(heading, "#")), "Question:"))
		answer = strings.TrimSpace(answer)
		if question == "" || answer == "" {
			continue
		}
		sections = append(sections, Section{Question: question, Answer: answer})
	}
	return meta, sections
}

// Text renders a section the way it is embedded.
func (s Section) Text() string {
	return "Question: " + s.Question + "\n\nAnswer: " + s.Answer
}
