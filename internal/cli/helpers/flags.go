package helpers

import (
	"debug/dwarf"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coral-mesh/dwarfscope/pkg/die"
)

// GlobalOptions are the flags shared by every command.
type GlobalOptions struct {
	ConfigPath string
	LogLevel   string
	Fixtures   []string
}

// Bind registers the shared flags on fs, normally the root command's
// persistent flag set.
func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigPath, "config", "", "Config file (default ~/.dwarfscope/config.yaml)")
	fs.StringVar(&o.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error), overrides the config")
	fs.StringSliceVar(&o.Fixtures, "fixture", nil, "Load an entry tree from a YAML fixture instead of a binary (repeatable)")
}

// AddFormatFlag adds a standard --format/-o flag to a command.
func AddFormatFlag(cmd *cobra.Command, formatVar *string, defaultFormat OutputFormat, supportedFormats []OutputFormat) {
	formatNames := make([]string, len(supportedFormats))
	for i, f := range supportedFormats {
		formatNames[i] = string(f)
	}

	description := fmt.Sprintf("Output format (%s)", strings.Join(formatNames, ", "))
	cmd.Flags().StringVarP(formatVar, "format", "o", string(defaultFormat), description)

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return formatNames, cobra.ShellCompDirectiveNoFileComp
	})
}

// ValidateFormat checks if the format is in the supported list.
func ValidateFormat(format string, supported []OutputFormat) error {
	for _, s := range supported {
		if format == string(s) {
			return nil
		}
	}

	supportedNames := make([]string, len(supported))
	for i, s := range supported {
		supportedNames[i] = string(s)
	}

	return fmt.Errorf("unsupported format %q, must be one of: %s",
		format, strings.Join(supportedNames, ", "))
}

// ParseTags converts tag names such as "struct" or "DW_TAG_class_type" into
// tags. An empty list yields nil.
func ParseTags(names []string) ([]dwarf.Tag, error) {
	var tags []dwarf.Tag
	for _, name := range names {
		tag, err := die.ParseTag(name)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}
