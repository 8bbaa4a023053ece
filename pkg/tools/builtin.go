package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Weather is a canned weather report tool.
func Weather() Tool {
	return Tool{
		Name:        "get_weather",
		Description: "Get current weather for a location",
		Params: []Param{
			{Name: "location", Type: TypeString, Description: "City name", Required: true},
		},
		Examples: []string{"What's the weather in San Francisco?"},
		Handler: func(_ context.Context, args Args) (string, error) {
			return fmt.Sprintf("Weather in %s: Sunny, 72°F", args.String("location")), nil
		},
	}
}

// Email pretends to send an email and reports what it would have sent.
func Email() Tool {
	return Tool{
		Name:        "send_email",
		Description: "Send an email to someone",
		Params: []Param{
			{Name: "email", Type: TypeString, Description: "Email address", Required: true},
			{Name: "subject", Type: TypeString, Description: "Email subject", Required: true},
			{Name: "message", Type: TypeString, Description: "Email message", Required: true},
		},
		Examples: []string{`Send an email to john@example.com saying "Meeting at 3pm"`},
		Handler: func(_ context.Context, args Args) (string, error) {
			return fmt.Sprintf("Email sent to %s with subject %q", args.String("email"), args.String("subject")), nil
		},
	}
}

// Clock reports the current time. now is injectable for tests.
func Clock(now func() time.Time) Tool {
	if now == nil {
		now = time.Now
	}
	return Tool{
		Name:        "current_time",
		Description: "Returns the current time in RFC3339 format",
		Params: []Param{
			{Name: "timezone", Type: TypeString, Description: "IANA zone such as Europe/Paris", Default: "UTC"},
		},
		Examples: []string{"What time is it in Tokyo?"},
		Handler: func(_ context.Context, args Args) (string, error) {
			loc, err := time.LoadLocation(args.String("timezone"))
			if err != nil {
				return "", goerr.Wrap(err, "unknown timezone", goerr.V("timezone", args.String("timezone")))
			}
			return now().In(loc).Format(time.RFC3339), nil
		},
	}
}

// Calculator evaluates a single binary arithmetic operation.
func Calculator() Tool {
	return Tool{
		Name:        "calculate",
		Description: "Evaluates a simple arithmetic operation on two numbers",
		Params: []Param{
			{Name: "left", Type: TypeNumber, Description: "Left operand", Required: true},
			{Name: "operator", Type: TypeString, Description: "Operator", Required: true, Enum: []string{"+", "-", "*", "/"}},
			{Name: "right", Type: TypeNumber, Description: "Right operand", Required: true},
		},
		Examples: []string{"What is 21 divided by 3?"},
		Handler: func(_ context.Context, args Args) (string, error) {
			left, right := args.Float("left"), args.Float("right")
			var result float64
			switch args.String("operator") {
			case "+":
				result = left + right
			case "-":
				result = left - right
			case "*":
				result = left * right
			case "/":
				if math.Abs(right) < 1e-12 {
					return "", goerr.New("division by zero", goerr.V("left", left))
				}
				result = left / right
			}
			return strconv.FormatFloat(result, 'f', -1, 64), nil
		},
	}
}
