package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meshpipe/meshpipe/pkg/logging"
)

var (
	cfgFile       string
	cacheDir      string
	descriptorDir string
	binDir        string
	logLevel      string
	jsonLogs      bool
	listenAddr    string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "meshpipe",
	Short: "Photogrammetry node pipeline runner",
	Long:  `meshpipe executes declaratively described photogrammetry nodes by invoking their external binaries, with background monitoring of side artifacts such as the automatic bounding box.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.meshpipe/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache", "", "cache directory for node outputs (default ./cache)")
	rootCmd.PersistentFlags().StringVar(&descriptorDir, "descriptors", "", "node descriptor directory (default ./descriptors)")
	rootCmd.PersistentFlags().StringVar(&binDir, "bin-dir", "", "directory holding the external binaries (default: PATH lookup)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit JSON log lines")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "status server listen address (default 127.0.0.1:8640)")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(filepath.Join(home, ".meshpipe"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetDefault("cache_dir", "./cache")
	viper.SetDefault("descriptor_dir", "./descriptors")
	viper.SetDefault("poll_interval_seconds", 5)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("listen", "127.0.0.1:8640")

	viper.AutomaticEnv()
	viper.BindEnv("cache_dir", "MESHPIPE_CACHE")
	viper.BindEnv("descriptor_dir", "MESHPIPE_DESCRIPTORS")
	viper.BindEnv("bin_dir", "MESHPIPE_BIN_DIR")

	// Missing config file is fine, defaults apply.
	viper.ReadInConfig()

	// Flag > config file > env > default.
	applyConfig()
}

func applyConfig() {
	if cacheDir == "" {
		cacheDir = viper.GetString("cache_dir")
	}
	if descriptorDir == "" {
		descriptorDir = viper.GetString("descriptor_dir")
	}
	if binDir == "" {
		binDir = viper.GetString("bin_dir")
	}
	if logLevel == "" {
		logLevel = viper.GetString("log_level")
	}
	if listenAddr == "" {
		listenAddr = viper.GetString("listen")
	}
}

// GetCacheDir returns the configured cache directory.
func GetCacheDir() string { return cacheDir }

// GetDescriptorDir returns the configured descriptor directory.
func GetDescriptorDir() string { return descriptorDir }

// GetBinDir returns the configured binary directory.
func GetBinDir() string { return binDir }

// GetListenAddr returns the status server listen address.
func GetListenAddr() string { return listenAddr }

// GetPollInterval returns the bounding box poll interval.
func GetPollInterval() time.Duration {
	return time.Duration(viper.GetInt("poll_interval_seconds")) * time.Second
}

// NewLogger builds the process logger from configuration.
func NewLogger() *logging.Logger {
	return logging.NewLogger(logging.ParseLevel(logLevel), jsonLogs)
}
