package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/infrastructure/chunking"
)

type knowledgeFile struct {
	Documents []domain.KnowledgeDocument `yaml:"documents"`
}

// loadKnowledgeFile reads documents from YAML or from a markdown Q&A file.
// Each markdown section becomes its own document.
func loadKnowledgeFile(path string) ([]domain.KnowledgeDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseKnowledgeYAML(raw, path)
	case ".md", ".markdown":
		return parseKnowledgeMarkdown(string(raw), path), nil
	default:
		return nil, fmt.Errorf("unsupported knowledge file type %q", filepath.Ext(path))
	}
}

func parseKnowledgeYAML(raw []byte, path string) ([]domain.KnowledgeDocument, error) {
	var file knowledgeFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	base := fileStem(path)
	docs := make([]domain.KnowledgeDocument, 0, len(file.Documents))
	for i, doc := range file.Documents {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		if doc.ID == "" {
			doc.ID = base + "-" + strconv.Itoa(i+1)
		}
		if doc.Source == "" {
			doc.Source = filepath.Base(path)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func parseKnowledgeMarkdown(content, path string) []domain.KnowledgeDocument {
	meta, sections := chunking.ParseMarkdownQA(content)
	base := meta["id"]
	if base == "" {
		base = fileStem(path)
	}
	source := meta["source"]
	if source == "" {
		source = filepath.Base(path)
	}

	docs := make([]domain.KnowledgeDocument, 0, len(sections))
	for i, section := range sections {
		title := meta["title"]
		if title == "" {
			title = section.Question
		}
		docs = append(docs, domain.KnowledgeDocument{
			ID:      base + "-" + strconv.Itoa(i+1),
			Topic:   meta["topic"],
			Title:   title,
			Source:  source,
			Content: section.Text(),
		})
	}
	return docs
}

// loadPropertiesFile decodes a YAML list of property records. Records pass
// through JSON so null fields map onto unknown values the same way as the API.
func loadPropertiesFile(path string) ([]domain.Property, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read properties file: %w", err)
	}
	return parseProperties(raw)
}

func parseProperties(raw []byte) ([]domain.Property, error) {
	var file struct {
		Properties []map[string]any `yaml:"properties"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}

	properties := make([]domain.Property, 0, len(file.Properties))
	for i, record := range file.Properties {
		encoded, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("encode property %d: %w", i+1, err)
		}
		var p domain.Property
		if err := json.Unmarshal(encoded, &p); err != nil {
			return nil, fmt.Errorf("decode property %d: %w", i+1, err)
		}
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("property %d: property_id is required", i+1)
		}
		properties = append(properties, p)
	}
	return properties, nil
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
