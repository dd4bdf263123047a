package util

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/foliodb/foliodb/folio"
	"github.com/foliodb/foliodb/lib/logging"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds common store connection flags to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "endpoint"
	cmd.PersistentFlags().String(key, folio.DefaultEndpoint, WrapString("The store URI: scheme://[:password@]host:port[/db]"))

	key = "name"
	cmd.PersistentFlags().String(key, "folio", WrapString("Diagnostic label of the store"))

	key = "pool-size"
	cmd.PersistentFlags().Int(key, folio.DefaultPoolSize, WrapString("Size of the connection pool"))

	key = "connect-timeout"
	cmd.PersistentFlags().Int(key, 5, WrapString("The TCP connect timeout in seconds"))

	key = "receive-timeout"
	cmd.PersistentFlags().Int(key, 30, WrapString("The reply read timeout in seconds"))

	key = "id-prefix"
	cmd.PersistentFlags().String(key, "", WrapString("Optional prefix used to absolutize relative record ids"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("folio")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetStoreConfig reads store configuration from viper
func GetStoreConfig() folio.Config {
	return folio.Config{
		Name:           viper.GetString("name"),
		Endpoint:       viper.GetString("endpoint"),
		PoolSize:       viper.GetInt("pool-size"),
		ConnectTimeout: time.Duration(viper.GetInt("connect-timeout")) * time.Second,
		ReceiveTimeout: time.Duration(viper.GetInt("receive-timeout")) * time.Second,
		IDPrefix:       viper.GetString("id-prefix"),
		LogLevel:       viper.GetString("log-level"),
	}
}

// OpenStore initializes logging and opens the configured store
func OpenStore() (*folio.Folio, error) {
	logging.Init(viper.GetString("log-level"))
	return folio.Open(GetStoreConfig())
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
