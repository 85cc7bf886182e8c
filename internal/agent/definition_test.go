package agent

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefinitionYAML(t *testing.T) {
	path := writeFile(t, "agent.yaml", `
name: support_agent
instruction: |
  You answer support questions.
`)
	def, err := LoadDefinition(path)
	if err != nil {
		t.Fatalf("LoadDefinition failed: %v", err)
	}
	if def.Name != "support_agent" {
		t.Fatalf("unexpected name: %q", def.Name)
	}
	if def.Instruction != "You answer support questions." {
		t.Fatalf("unexpected instruction: %q", def.Instruction)
	}
	if def.Model != "gemini-2.0-flash" {
		t.Fatalf("model should keep its default, got %q", def.Model)
	}
}

func TestLoadDefinitionTOML(t *testing.T) {
	path := writeFile(t, "agent.toml", `
name = "toml_agent"
model = "gpt-4o-mini"
description = "From TOML"
`)
	def, err := LoadDefinition(path)
	if err != nil {
		t.Fatalf("LoadDefinition failed: %v", err)
	}
	if def.Name != "toml_agent" || def.Model != "gpt-4o-mini" || def.Description != "From TOML" {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if def.Instruction != DefaultDefinition().Instruction {
		t.Fatalf("instruction should keep its default, got %q", def.Instruction)
	}
}

func TestLoadDefinitionErrors(t *testing.T) {
	if _, err := LoadDefinition(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := LoadDefinition(writeFile(t, "agent.json", `{}`)); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
	if _, err := LoadDefinition(writeFile(t, "agent.toml", `name = `)); err == nil {
		t.Fatalf("expected error for invalid toml")
	}
}
