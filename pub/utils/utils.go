package utils

import (
	"os"
	"strconv"
)

func GetEnvInt(varName string, defaultVal int) int {
	v := os.Getenv(varName)
	if v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultVal
}

func GetEnvString(varName string, defaultVal string) string {
	v := os.Getenv(varName)
	if v != "" {
		return v
	}
	return defaultVal
}
