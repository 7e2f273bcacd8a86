//go:build e2e

package e2e

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	paho "github.com/eclipse/paho.mqtt.golang"
	_ "github.com/jackc/pgx/v5/stdlib"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const repoRootRel = ".."
const mainPkgRel = "./cmd"

// TestPipeline_AllSinks runs the binary once against a stub extraction service,
// a mosquitto broker and postgres, and checks every sink received the record.
func TestPipeline_AllSinks(t *testing.T) {
	repoRoot := repoRootPath(t)
	broker := startMosquitto(t)
	pgURL := startPostgres(t)
	extractorURL := startStubExtractor(t)

	messages := subscribe(t, broker, "weather/#")

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	host, port := splitHostPort(t, broker)
	writeConfig(t, cfgPath, fmt.Sprintf(`mqtt_server: %s
mqtt_port: %s
mqtt_root: "weather/"
mqtt_windrose_root: "weather/windrose/"
database_url: %q
extractor_url: %q
`, host, port, pgURL, extractorURL))

	bin := buildBinary(t, repoRoot)
	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=debug",
		"CONFIG_FILE="+cfgPath,
		"STATIONS=1234",
		"JSON_FILE="+filepath.Join(dir, "out"),
		"PUBLISH_MQTT=true",
		"WINDROSE=true",
		"DATABASE=true",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "found. Station Name: Harbour") {
		t.Errorf("console output missing station line:\n%s", out)
	}

	if _, err := os.Stat(filepath.Join(dir, "out.json")); err != nil {
		t.Errorf("json output: %v", err)
	}

	got := messages.waitFor(t, 2, 10*time.Second)
	if _, ok := got["weather/1234 - Harbour"]; !ok {
		t.Errorf("record topic not published; got %v", keys(got))
	}
	var wind struct {
		Speed     float64 `json:"wind_speed"`
		Direction float64 `json:"wind_direction"`
	}
	if err := json.Unmarshal(got["weather/windrose/1234 - Harbour"], &wind); err != nil {
		t.Fatalf("windrose payload: %v", err)
	}
	if wind.Direction != 315 {
		t.Errorf("wind_direction = %v, want 315", wind.Direction)
	}

	conn, err := sql.Open("pgx", pgURL)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer conn.Close()
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM weather_data WHERE station_id = 1234`).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}

func startStubExtractor(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"station_id":   r.PathValue("id"),
			"station_name": "Harbour",
			"observations": []map[string]string{
				{"label": "Air Temperature", "value": "21.4 °C"},
				{"label": "Wind Speed", "value": "10 km/h"},
				{"label": "Wind Direction", "value": "NW"},
			},
		})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts.URL
}

func startMosquitto(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	mqttPort := nat.Port("1883/tcp")

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "eclipse-mosquitto:2",
			Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
			ExposedPorts: []string{string(mqttPort)},
			WaitingFor:   wait.ForListeningPort(mqttPort).WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("mosquitto host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, mqttPort)
	if err != nil {
		t.Fatalf("mosquitto port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	pgPort := nat.Port("5432/tcp")

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{string(pgPort)},
			Env: map[string]string{
				"POSTGRES_USER":     "weather",
				"POSTGRES_PASSWORD": "weather",
				"POSTGRES_DB":       "weather",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort(pgPort),
			).WithDeadline(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, pgPort)
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	return fmt.Sprintf("postgres://weather:weather@%s:%s/weather?sslmode=disable", host, mapped.Port())
}

type inbox struct {
	mu   sync.Mutex
	msgs map[string][]byte
}

func (in *inbox) waitFor(t *testing.T, n int, timeout time.Duration) map[string][]byte {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		in.mu.Lock()
		if len(in.msgs) >= n {
			out := make(map[string][]byte, len(in.msgs))
			for k, v := range in.msgs {
				out[k] = v
			}
			in.mu.Unlock()
			return out
		}
		in.mu.Unlock()
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("received fewer than %d messages after %s", n, timeout)
	return nil
}

func subscribe(t *testing.T, broker, filter string) *inbox {
	t.Helper()
	in := &inbox{msgs: map[string][]byte{}}
	opts := paho.NewClientOptions().
		AddBroker("tcp://" + broker).
		SetClientID("iceicedata-e2e")
	client := paho.NewClient(opts)
	if tok := client.Connect(); !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
		t.Fatalf("subscriber connect: %v", tok.Error())
	}
	t.Cleanup(func() { client.Disconnect(250) })

	tok := client.Subscribe(filter, 1, func(_ paho.Client, m paho.Message) {
		in.mu.Lock()
		in.msgs[m.Topic()] = m.Payload()
		in.mu.Unlock()
	})
	if !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
		t.Fatalf("subscribe: %v", tok.Error())
	}
	return in
}

func splitHostPort(t *testing.T, addr string) (string, string) {
	t.Helper()
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		t.Fatalf("bad address %q", addr)
	}
	return addr[:i], addr[i+1:]
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}
	return repo
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()

	out := filepath.Join(t.TempDir(), "iceicedata")
	build := exec.Command("go", "build", "-o", out, mainPkgRel)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(b))
	}
	return out
}
