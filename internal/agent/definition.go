package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Definition describes the LLM agent that answers turns.
type Definition struct {
	Name        string `yaml:"name" toml:"name"`
	Model       string `yaml:"model" toml:"model"`
	Description string `yaml:"description" toml:"description"`
	Instruction string `yaml:"instruction" toml:"instruction"`
}

// DefaultDefinition is the casual chat agent.
func DefaultDefinition() *Definition {
	return &Definition{
		Name:        "chat_agent",
		Model:       "gemini-2.0-flash",
		Description: "Simple chat agent",
		Instruction: "You are a helpful chat agent that casually chats with the user.",
	}
}

// LoadDefinition reads a YAML (.yaml, .yml) or TOML (.toml) agent file.
// Fields left empty keep their DefaultDefinition values.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent definition: %w", err)
	}

	var loaded Definition
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported agent definition format %q", ext)
	}

	def := DefaultDefinition()
	if loaded.Name != "" {
		def.Name = loaded.Name
	}
	if loaded.Model != "" {
		def.Model = loaded.Model
	}
	if loaded.Description != "" {
		def.Description = loaded.Description
	}
	if loaded.Instruction != "" {
		def.Instruction = strings.TrimSpace(loaded.Instruction)
	}
	return def, nil
}
