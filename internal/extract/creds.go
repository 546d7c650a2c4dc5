package extract

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// ClientOptionsFromEnv returns Google client options for credentials given
// either inline (GOOGLE_APPLICATION_CREDENTIALS_JSON) or as a file path
// (GOOGLE_APPLICATION_CREDENTIALS). Nil means application default
// credentials.
func ClientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	if creds == "" {
		return nil
	}

	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}

	return []option.ClientOption{option.WithCredentialsFile(creds)}
}
