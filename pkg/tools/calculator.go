package tools

import (
	"context"
	"fmt"

	"github.com/phoenixlabs/phoenix/pkg/toolexec"
)

func calculatorTool() toolexec.ToolDefinition {
	return toolexec.ToolDefinition{
		Name:        "calculator",
		Description: "Perform an arithmetic operation between two numbers and return the result.",
		Parameters: []toolexec.ToolParameter{
			{Name: "first_number", Type: "number", Description: "First operand", Required: true},
			{Name: "second_number", Type: "number", Description: "Second operand", Required: true},
			{Name: "operation", Type: "string", Description: "Operation to perform", Required: true,
				Enum: []string{"add", "subtract", "multiply", "divide"}},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			first, ok := floatParam(params, "first_number")
			if !ok {
				return nil, fmt.Errorf("first_number must be a number")
			}
			second, ok := floatParam(params, "second_number")
			if !ok {
				return nil, fmt.Errorf("second_number must be a number")
			}
			operation, _ := params["operation"].(string)

			var result float64
			switch operation {
			case "add":
				result = first + second
			case "subtract":
				result = first - second
			case "multiply":
				result = first * second
			case "divide":
				// In-band so the model can recover instead of aborting
				if second == 0 {
					return map[string]interface{}{"error": "division by zero is not allowed"}, nil
				}
				result = first / second
			default:
				return map[string]interface{}{"error": fmt.Sprintf("unsupported operation: %s", operation)}, nil
			}

			return map[string]interface{}{"result": result}, nil
		},
	}
}
