package appdirs

import (
	"os"
	"path/filepath"
)

const (
	appDirName = "canvasbridge"
)

func DataDir() (string, error) {
	if override := os.Getenv("CANVASBRIDGE_DATA_DIR"); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appDirName), nil
}

func LogsDir(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}

func ConfigPath(dataDir string) string {
	if override := os.Getenv("CANVASBRIDGE_CONFIG"); override != "" {
		return override
	}
	return filepath.Join(dataDir, "config.yaml")
}
