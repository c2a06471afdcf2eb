package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/ldschema/am"
	"github.com/teranos/ldschema/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage ldschema configuration",
	Long: `am: Manage ldschema configuration ("I am")

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/ldschema/am.toml)
3. User config (~/.ldschema/am.toml)
4. Project config (./am.toml, searched upward)
5. Environment variables (LDSCHEMA_* prefix; OPENAI_API_KEY for the completion key)

Secrets (completion.api_key, server.debug_token) are never printed.

Examples:
  ldschema am show                  # Show current configuration
  ldschema am show --format json    # Show configuration in JSON format
  ldschema am get completion.model  # Get a specific config value
  ldschema am validate              # Validate current configuration
  ldschema am where                 # Show which files are read`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., cache.backend, review.threshold)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out, err := marshalConfig(cfg, configFormat)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// marshalConfig renders cfg in one of the supported formats. Secrets carry
// json:"-" and yaml:"-" and are blanked for TOML.
func marshalConfig(cfg *am.Config, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		return string(data) + "\n", nil

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return "", fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		return "# ldschema configuration\n" + string(data), nil

	case "toml":
		redacted := *cfg
		redacted.Completion.APIKey = ""
		redacted.Server.DebugToken = ""
		data, err := toml.Marshal(redacted)
		if err != nil {
			return "", fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		return "# ldschema configuration\n" + string(data), nil
	}
	return "", errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", format)
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if key == "completion.api_key" || key == "server.debug_token" {
		return errors.NewInvalidRequestError("%s is a secret and is not printed", key)
	}

	v := am.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	pterm.Success.Println("Configuration is valid")
	if cfg.Completion.APIKey == "" {
		pterm.Warning.Println("completion.api_key is not set: repair and generation will fail")
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.RedisURL == "" {
		pterm.Warning.Println("cache.redis_url is not set: the redis backend will dial localhost:6379")
	}
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	paths := []string{"/etc/ldschema/am.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".ldschema", "am.toml"))
	}
	if project := am.ProjectConfigPath(); project != "" {
		paths = append(paths, project)
	} else {
		paths = append(paths, "./am.toml (not found upward)")
	}
	if explicit, _ := cmd.Flags().GetString("config"); explicit != "" {
		paths = []string{explicit}
		pterm.Info.Println("--config given: only this file is read on top of defaults")
	}

	data := pterm.TableData{{"Order", "File", "Status"}}
	for i, p := range paths {
		status := "missing"
		if _, err := os.Stat(p); err == nil {
			status = "loaded"
		}
		data = append(data, []string{fmt.Sprintf("%d", i+1), p, status})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Println("Environment variables with the LDSCHEMA_ prefix override every file.")
	return nil
}
