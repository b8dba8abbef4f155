package config

import (
	"fmt"
	"os"
)

func Template() string {
	return template
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const template = `# ratlink configuration
transport = "websocket" # websocket | serial
log_level = "info"
metrics_addr = ""

[websocket]
url = "ws://192.168.4.1:9999"
connect_timeout = "5s"
write_timeout = "5s"
monitor = false
tls_ca_file = ""
tls_server_name = ""
tls_insecure_skip_verify = false

[serial]
device = "/dev/ttyUSB0"
baud = 115200
read_timeout_ms = 100
framing = "fixed" # fixed | tagged
notify_size = 20
max_frame_bytes = 512

[session]
monitor_interval = "1s"
inactivity_threshold = "1s"
trailing = "ignore" # ignore | reject
max_decode_failures = 0

[redial]
enabled = false
max_attempts = 0
initial_delay = "250ms"
max_delay = "5s"
multiplier = 2.0
jitter = true
`
