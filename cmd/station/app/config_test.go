package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/resonde/groundstation/internal/ingest"
	"github.com/resonde/groundstation/internal/telemetry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, `
serial:
  port: /dev/ttyUSB0
pipeline:
  fieldCount: 15
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if config.Serial.Port != "/dev/ttyUSB0" {
		t.Errorf("Port = %q, want /dev/ttyUSB0", config.Serial.Port)
	}
	if config.Serial.BaudRate != ingest.DefaultBaudRate {
		t.Errorf("BaudRate = %d, want default %d", config.Serial.BaudRate, ingest.DefaultBaudRate)
	}
	if config.Pipeline.FieldCount != telemetry.FieldCountLegacy {
		t.Errorf("FieldCount = %d, want %d", config.Pipeline.FieldCount, telemetry.FieldCountLegacy)
	}
}

func TestLoadConfig_RequiresSerialPort(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "{}")); err == nil {
		t.Fatal("LoadConfig without serial port succeeded, want error")
	}
}

func TestLoadConfig_RejectsNonPositiveGroundPressure(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
serial:
  port: /dev/ttyUSB0
pipeline:
  groundPressure: -1
`))
	if err == nil {
		t.Fatal("LoadConfig succeeded, want error")
	}
}
