package translator

import (
	"encoding/json"
	"strings"

	"github.com/llmgatewayd/llmgatewayd/pkg/models"
)

// transformTools converts Anthropic tool definitions to OpenAI function
// format. Strict is left false: Anthropic tool schemas mark every parameter
// required, but callers often only supply the truly-required ones, and
// OpenAI's strict mode rejects a call that omits an optional parameter.
func transformTools(tools []models.AnthropicTool) []models.OpenAITool {
	result := make([]models.OpenAITool, len(tools))

	for i, tool := range tools {
		name, description, params := tool.Name, tool.Description, tool.InputSchema
		if isComputerUseTool(tool.Type) {
			name, description, params = transformComputerUseTool(tool)
		}

		result[i] = models.OpenAITool{
			Type: "function",
			Function: models.OpenAIFunction{
				Name:        name,
				Description: description,
				Parameters:  cleanupSchemaForChatCompletions(params),
				Strict:      false,
			},
		}
	}
	return result
}

func isComputerUseTool(toolType string) bool {
	switch toolType {
	case models.ToolTypeComputer, models.ToolTypeTextEditor, models.ToolTypeBash:
		return true
	default:
		return false
	}
}

// transformComputerUseTool expresses one of Anthropic's built-in tools
// (computer, text editor, bash) as a generic OpenAI function so it can be
// proxied through an OpenAI-compatible endpoint.
func transformComputerUseTool(tool models.AnthropicTool) (name, description string, params interface{}) {
	switch tool.Type {
	case models.ToolTypeComputer:
		return "computer",
			"Control the computer: take screenshots, move the mouse, click, type text, and send keyboard shortcuts.",
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"action": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"screenshot", "mouse_move", "left_click", "right_click", "double_click", "middle_click", "left_click_drag", "type", "key", "scroll"},
						"description": "The action to perform",
					},
					"coordinate": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "integer"},
						"description": "Screen coordinates [x, y] for mouse actions",
					},
					"text": map[string]interface{}{
						"type":        "string",
						"description": "Text to type, or a key combination for the 'key' action",
					},
				},
				"required": []string{"action"},
			}

	case models.ToolTypeTextEditor:
		return "str_replace_editor",
			"View, create, and edit files. Supports viewing file contents, creating new files, and precise text replacements.",
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command":     map[string]interface{}{"type": "string", "enum": []string{"view", "create", "str_replace", "insert", "undo_edit"}, "description": "The editor command to execute"},
					"path":        map[string]interface{}{"type": "string", "description": "File path to operate on"},
					"file_text":   map[string]interface{}{"type": "string", "description": "File content for the 'create' command"},
					"old_str":     map[string]interface{}{"type": "string", "description": "String to find for 'str_replace'"},
					"new_str":     map[string]interface{}{"type": "string", "description": "Replacement string for 'str_replace'"},
					"insert_line": map[string]interface{}{"type": "integer", "description": "Line number for 'insert'"},
					"view_range":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}, "description": "Line range [start, end] for 'view'"},
				},
				"required": []string{"command", "path"},
			}

	case models.ToolTypeBash:
		return "bash",
			"Execute bash shell commands.",
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{"type": "string", "description": "The bash command to execute"},
					"restart": map[string]interface{}{"type": "boolean", "description": "Restart the bash session before executing"},
				},
				"required": []string{"command"},
			}

	default:
		return tool.Name, tool.Description, tool.InputSchema
	}
}

// cleanupSchemaForChatCompletions prepares an Anthropic tool schema for the
// Chat Completions API: drops the unsupported "uri" string format and
// narrows "required" to parameters that are actually required (Anthropic
// marks every parameter required regardless of whether it has a default).
func cleanupSchemaForChatCompletions(schema interface{}) interface{} {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return schema
	}
	var schemaMap map[string]interface{}
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return schema
	}
	cleanupSchemaMap(schemaMap)
	return schemaMap
}

func cleanupSchemaMap(schema map[string]interface{}) {
	if format, ok := schema["format"].(string); ok && format == "uri" {
		delete(schema, "format")
	}
	delete(schema, "strict")

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		trulyRequired := identifyTrulyRequired(props, schema)
		if len(trulyRequired) > 0 {
			schema["required"] = trulyRequired
		} else {
			delete(schema, "required")
		}
		for _, v := range props {
			if propMap, ok := v.(map[string]interface{}); ok {
				cleanupSchemaMap(propMap)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		cleanupSchemaMap(items)
	}
}

// identifyTrulyRequired keeps only parameters that were declared required and
// show no sign of actually being optional: no default value, not nullable,
// not boolean (almost always a flag), and no "optional"-flavored description.
func identifyTrulyRequired(props, schema map[string]interface{}) []string {
	trulyRequired := make([]string, 0, len(props)/2)

	originalRequired := make(map[string]bool)
	if req, ok := schema["required"].([]interface{}); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				originalRequired[s] = true
			}
		}
	}

	for propName, propVal := range props {
		propMap, ok := propVal.(map[string]interface{})
		if !ok || !originalRequired[propName] {
			continue
		}
		if _, hasDefault := propMap["default"]; hasDefault {
			continue
		}
		if nullable, ok := propMap["nullable"].(bool); ok && nullable {
			continue
		}
		if propType, ok := propMap["type"].(string); ok && propType == "boolean" {
			continue
		}
		if desc, ok := propMap["description"].(string); ok {
			descLower := strings.ToLower(desc)
			if strings.Contains(descLower, "optional") ||
				strings.Contains(descLower, "if not specified") ||
				strings.Contains(descLower, "defaults to") ||
				strings.Contains(descLower, "if provided") ||
				strings.Contains(descLower, "can be omitted") ||
				strings.Contains(descLower, "not required") {
				continue
			}
		}
		trulyRequired = append(trulyRequired, propName)
	}
	return trulyRequired
}

// transformToolChoice converts Anthropic tool_choice to OpenAI format.
func transformToolChoice(choice interface{}) interface{} {
	if choice == nil {
		return nil
	}
	if choiceMap, ok := choice.(map[string]interface{}); ok {
		if typeVal, ok := choiceMap["type"].(string); ok {
			switch typeVal {
			case "none":
				return "none"
			case "any":
				return "required"
			case "auto":
				return "auto"
			case "tool":
				if name, ok := choiceMap["name"].(string); ok {
					return map[string]interface{}{
						"type":     "function",
						"function": map[string]interface{}{"name": name},
					}
				}
			}
		}
	}
	return choice
}
