package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	// Component flags
	Props string
	Attrs []string

	// Output flags
	OutputFormat string
	Diagnostics  bool
	Composed     bool
}

var outputFormats = []string{"text", "json", "yaml"}

// AddStandardFlags adds the named flag groups to a command
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}

	for _, flagType := range flagTypes {
		switch flagType {
		case "component":
			addComponentFlags(cmd, flags)
		case "output":
			addOutputFlags(cmd, flags)
		}
	}

	return flags
}

func addComponentFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVar(&flags.Props, "props", "", "Component properties (JSON, or @file.json / @file.yml)")
	cmd.Flags().StringArrayVarP(&flags.Attrs, "attr", "a", nil, "Host attribute name=value (repeatable)")
	cmd.Flags().BoolVar(&flags.Diagnostics, "diagnostics", false, "Print collected diagnostics to stderr")
	cmd.Flags().BoolVar(&flags.Composed, "composed", true, "Include nested shadow trees as declarative templates")
}

func addOutputFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.OutputFormat, "output", "o", "text", "Output format (text|json|yaml)")
	AddFlagValidation(cmd, "output", ValidateOutputFormat)
}

// ParseProps parses component properties with support for file references
func (f *StandardFlags) ParseProps() (map[string]interface{}, error) {
	props := make(map[string]interface{})
	if f.Props == "" {
		return props, nil
	}

	if strings.HasPrefix(f.Props, "@") {
		filename := strings.TrimPrefix(f.Props, "@")
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read props file %s: %w", filename, err)
		}

		switch filepath.Ext(filename) {
		case ".yml", ".yaml":
			if err := yaml.Unmarshal(data, &props); err != nil {
				return nil, fmt.Errorf("invalid YAML in props file %s: %w", filename, err)
			}
		default:
			if err := json.Unmarshal(data, &props); err != nil {
				return nil, fmt.Errorf("invalid JSON in props file %s: %w", filename, err)
			}
		}
		return props, nil
	}

	if err := json.Unmarshal([]byte(f.Props), &props); err != nil {
		return nil, fmt.Errorf("invalid JSON in props: %w", err)
	}
	return props, nil
}

// ParseAttrs splits name=value pairs.
func (f *StandardFlags) ParseAttrs() (map[string]string, error) {
	attrs := make(map[string]string, len(f.Attrs))
	for _, pair := range f.Attrs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid attribute %q, expected name=value", pair)
		}
		attrs[strings.ToLower(name)] = value
	}
	return attrs, nil
}

// Write encodes v in the selected output format. text is rendered by the
// given function.
func (f *StandardFlags) Write(w io.Writer, v any, text func(io.Writer) error) error {
	switch f.OutputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidateOutputFormat accepts text, json and yaml.
func ValidateOutputFormat(format string) error {
	for _, f := range outputFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid output format %s, must be one of: %s",
		format, strings.Join(outputFormats, ", "))
}

// ValidatePort accepts 0 (any free port) through 65535.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}

	return nil
}

// readSource reads a file argument, or stdin for "-".
func readSource(cmd *cobra.Command, name string) (string, error) {
	var data []byte
	var err error
	if name == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return string(data), nil
}
