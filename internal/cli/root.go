package cli

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/sheetvault/sheetvault/internal/config"
)

// GlobalFlags contains global flags available for all commands
type GlobalFlags struct {
	Config  string
	DBPath  string
	Verbose bool
	JSON    bool
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "sheetvault",
	Short: "SheetVault - encrypted local cache for remote spreadsheets",
	Long: `SheetVault keeps an encrypted local copy of a remote spreadsheet and
syncs it incrementally.

Sign in once with your provider account; the credential lives in the OS
keyring and the cached rows live in an encrypted SQLite database, so
nothing sensitive ever touches a plaintext file.

Typical session:
  sheetvault login
  sheetvault sources
  sheetvault sources select <id> --range "Sheet1!A:D"
  sheetvault sync
  sheetvault records

Use "sheetvault [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

var globalFlags GlobalFlags

// GetGlobalFlags returns the global flags
func GetGlobalFlags() GlobalFlags {
	return globalFlags
}

// DefaultConfigPath returns the per-user default config location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".sheetvault", "config.yaml")
}

// InitRoot initializes the root command with global flags
func InitRoot() {
	configPath := os.Getenv("SHEETVAULT_CONFIG_PATH")
	if configPath == "" {
		configPath = DefaultConfigPath()
	}
	dbPath := os.Getenv("SHEETVAULT_DB_PATH")
	if dbPath == "" {
		dbPath = config.DefaultDatabasePath()
	}

	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", configPath, "Path to configuration file")
	RootCmd.PersistentFlags().StringVar(&globalFlags.DBPath, "db", dbPath, "Path to the local database")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")
	RootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format")

	RootCmd.AddCommand(versionCmd)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of SheetVault",
	Run: func(cmd *cobra.Command, args []string) {
		info := GetVersionInfo()
		cmd.Println("SheetVault Version:", info.Version)
		cmd.Println("Go Version:", info.GoVersion)
		cmd.Println("OS/Arch:", info.OS+"/"+info.Arch)
	},
}

// VersionInfo contains version information
type VersionInfo struct {
	Version   string
	GoVersion string
	OS        string
	Arch      string
}

// GetVersionInfo returns version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
