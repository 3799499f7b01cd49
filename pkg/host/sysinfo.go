package host

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// SystemInfo collects CPU, memory, graphics, OS, network and battery facts.
// Each section is best effort; a section that cannot be read is reported
// with an "error" field instead of failing the whole call.
func (s *System) SystemInfo(ctx context.Context) (map[string]any, error) {
	hostname, _ := os.Hostname()
	info := map[string]any{
		"cpu":      s.cpuInfo(ctx),
		"mem":      s.memInfo(ctx),
		"graphics": s.graphicsInfo(ctx),
		"os": map[string]any{
			"platform": s.goos,
			"arch":     runtime.GOARCH,
			"hostname": hostname,
			"distro":   s.distro(ctx),
		},
		"network": networkInfo(),
		"battery": s.batteryInfo(ctx),
	}
	return info, nil
}

func (s *System) cpuInfo(ctx context.Context) map[string]any {
	out := map[string]any{"cores": runtime.NumCPU()}
	switch s.goos {
	case "linux":
		if b, err := s.readFile("/proc/cpuinfo"); err == nil {
			if v := procField(string(b), "model name"); v != "" {
				out["brand"] = v
			}
		}
		if b, err := s.readFile("/proc/loadavg"); err == nil {
			if f := strings.Fields(string(b)); len(f) >= 3 {
				out["load"] = f[:3]
			}
		}
	case "darwin":
		if res, err := s.run.Run(ctx, "sysctl", "-n", "machdep.cpu.brand_string"); err == nil {
			out["brand"] = strings.TrimSpace(res.Stdout)
		}
	}
	return out
}

func (s *System) memInfo(ctx context.Context) map[string]any {
	switch s.goos {
	case "linux":
		b, err := s.readFile("/proc/meminfo")
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		total := procKB(string(b), "MemTotal")
		avail := procKB(string(b), "MemAvailable")
		return memSummary(total, total-avail)
	case "darwin":
		res, err := s.run.Run(ctx, "sysctl", "-n", "hw.memsize")
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		total, _ := strconv.ParseUint(strings.TrimSpace(res.Stdout), 10, 64)
		return map[string]any{"total": humanize.IBytes(total)}
	default:
		return map[string]any{"error": ErrUnsupported.Error()}
	}
}

func memSummary(total, used uint64) map[string]any {
	out := map[string]any{
		"total": humanize.IBytes(total),
		"used":  humanize.IBytes(used),
		"free":  humanize.IBytes(total - used),
	}
	if total > 0 {
		out["usedPercent"] = float64(int(float64(used)/float64(total)*1000)) / 10
	}
	return out
}

func (s *System) graphicsInfo(ctx context.Context) map[string]any {
	switch s.goos {
	case "linux":
		res, err := s.run.Run(ctx, "lspci")
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		var controllers []string
		for _, line := range strings.Split(res.Stdout, "\n") {
			if strings.Contains(line, "VGA") || strings.Contains(line, "3D controller") {
				if i := strings.Index(line, ": "); i >= 0 {
					line = line[i+2:]
				}
				controllers = append(controllers, strings.TrimSpace(line))
			}
		}
		return map[string]any{"controllers": controllers}
	case "darwin":
		res, err := s.run.Run(ctx, "system_profiler", "SPDisplaysDataType")
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		var controllers []string
		for _, line := range strings.Split(res.Stdout, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "Chipset Model:") {
				controllers = append(controllers, strings.TrimSpace(strings.TrimPrefix(line, "Chipset Model:")))
			}
		}
		return map[string]any{"controllers": controllers}
	default:
		return map[string]any{"error": ErrUnsupported.Error()}
	}
}

func (s *System) distro(ctx context.Context) string {
	switch s.goos {
	case "linux":
		b, err := s.readFile("/etc/os-release")
		if err != nil {
			return ""
		}
		for _, line := range strings.Split(string(b), "\n") {
			if v, ok := strings.CutPrefix(line, "PRETTY_NAME="); ok {
				return strings.Trim(v, `"`)
			}
		}
	case "darwin":
		if res, err := s.run.Run(ctx, "sw_vers", "-productVersion"); err == nil {
			return "macOS " + strings.TrimSpace(res.Stdout)
		}
	}
	return ""
}

func (s *System) batteryInfo(ctx context.Context) map[string]any {
	switch s.goos {
	case "linux":
		matches, _ := filepath.Glob("/sys/class/power_supply/BAT*")
		if len(matches) == 0 {
			return map[string]any{"hasBattery": false}
		}
		out := map[string]any{"hasBattery": true}
		if b, err := s.readFile(filepath.Join(matches[0], "capacity")); err == nil {
			if pct, err := strconv.Atoi(strings.TrimSpace(string(b))); err == nil {
				out["percent"] = pct
			}
		}
		if b, err := s.readFile(filepath.Join(matches[0], "status")); err == nil {
			out["isCharging"] = strings.TrimSpace(string(b)) == "Charging"
		}
		return out
	case "darwin":
		res, err := s.run.Run(ctx, "pmset", "-g", "batt")
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		return ParsePmset(res.Stdout)
	default:
		return map[string]any{"error": ErrUnsupported.Error()}
	}
}

// ParsePmset reads the output of "pmset -g batt".
func ParsePmset(out string) map[string]any {
	res := map[string]any{"hasBattery": false}
	for _, line := range strings.Split(out, "\n") {
		i := strings.Index(line, "%")
		if i < 0 {
			continue
		}
		j := i
		for j > 0 && line[j-1] >= '0' && line[j-1] <= '9' {
			j--
		}
		pct, err := strconv.Atoi(line[j:i])
		if err != nil {
			continue
		}
		res["hasBattery"] = true
		res["percent"] = pct
		res["isCharging"] = strings.Contains(line, "; charging") || strings.Contains(line, "AC attached")
		break
	}
	return res
}

func networkInfo() []map[string]any {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []map[string]any
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		var ips []string
		for _, a := range addrs {
			ips = append(ips, a.String())
		}
		out = append(out, map[string]any{
			"iface": iface.Name,
			"mac":   iface.HardwareAddr.String(),
			"addrs": ips,
		})
	}
	return out
}

func procField(content, key string) string {
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), ":")
		if ok && strings.TrimSpace(k) == key {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// procKB returns a /proc/meminfo value in bytes.
func procKB(content, key string) uint64 {
	v := procField(content, key)
	v = strings.TrimSpace(strings.TrimSuffix(v, "kB"))
	n, _ := strconv.ParseUint(v, 10, 64)
	return n * 1024
}
