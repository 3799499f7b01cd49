package host

import (
	"bufio"
	"context"
	"encoding/csv"
	"sort"
	"strconv"
	"strings"
)

// MaxProcesses is how many rows Processes returns.
const MaxProcesses = 20

// Processes returns the busiest processes, highest CPU first.
func (s *System) Processes(ctx context.Context) ([]Process, error) {
	var (
		procs []Process
		err   error
	)
	switch s.goos {
	case "windows":
		procs, err = s.windowsProcesses(ctx)
	default:
		var res ExecResult
		res, err = s.run.Run(ctx, "ps", "-A", "-o", "pid=,pcpu=,pmem=,comm=")
		if err == nil {
			procs = ParsePS(res.Stdout)
		}
	}
	if err != nil {
		return nil, err
	}
	return TopByCPU(procs, MaxProcesses), nil
}

func (s *System) windowsProcesses(ctx context.Context) ([]Process, error) {
	res, err := s.run.Run(ctx, "powershell", "-NoProfile", "-Command",
		"Get-Process | Select-Object ProcessName,Id,CPU,WorkingSet64 | ConvertTo-Csv -NoTypeInformation")
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(strings.NewReader(res.Stdout))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []Process
	for i, row := range rows {
		if i == 0 || len(row) < 4 {
			continue
		}
		pid, _ := strconv.Atoi(row[1])
		cpu, _ := strconv.ParseFloat(row[2], 64)
		ws, _ := strconv.ParseFloat(row[3], 64)
		out = append(out, Process{Name: row[0], PID: pid, CPU: cpu, Mem: ws / (1 << 20)})
	}
	return out, nil
}

// ParsePS parses "pid pcpu pmem comm" rows. Command names may contain spaces.
func ParsePS(out string) []Process {
	var procs []Process
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		cpu, _ := strconv.ParseFloat(fields[1], 64)
		mem, _ := strconv.ParseFloat(fields[2], 64)
		procs = append(procs, Process{
			Name: strings.Join(fields[3:], " "),
			PID:  pid,
			CPU:  cpu,
			Mem:  mem,
		})
	}
	return procs
}

// TopByCPU sorts by CPU descending and keeps at most n rows.
func TopByCPU(procs []Process, n int) []Process {
	sort.SliceStable(procs, func(i, j int) bool { return procs[i].CPU > procs[j].CPU })
	if len(procs) > n {
		procs = procs[:n]
	}
	return procs
}
