package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kbukum/eventkit/component"
	"github.com/kbukum/eventkit/di"
)

// ComponentInfo describes a started component in the summary.
type ComponentInfo struct {
	Name    string
	Type    string // "source", "category" or "component"
	Details string
}

// ServiceInfo describes a registered service in the summary.
type ServiceInfo struct {
	Name         string
	State        string
	Dependencies []string
}

// Summary tracks and displays the application bootstrap process.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	out             io.Writer
}

// NewSummary creates a new bootstrap summary tracker.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{
		serviceName: serviceName,
		version:     version,
		out:         os.Stdout,
	}
}

// SetOutput redirects the summary, e.g. to a buffer in tests.
func (s *Summary) SetOutput(w io.Writer) {
	s.out = w
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// Components collects the summary info of every registered component.
func Components(registry *component.Registry) []ComponentInfo {
	all := registry.All()
	out := make([]ComponentInfo, 0, len(all))
	for _, c := range all {
		info := ComponentInfo{Name: c.Name(), Type: "component"}
		if d, ok := c.(component.Describable); ok {
			desc := d.Describe()
			if desc.Type != "" {
				info.Type = desc.Type
			}
			info.Details = desc.Details
			if desc.Name != "" {
				info.Details = strings.TrimSpace(desc.Name + " " + desc.Details)
			}
		}
		out = append(out, info)
	}
	return out
}

// Services collects the summary info of every registered service.
func Services(container *di.Container) []ServiceInfo {
	regs := container.Registrations()
	out := make([]ServiceInfo, 0, len(regs))
	for _, r := range regs {
		state := "lazy"
		if r.Constructed {
			state = r.State.String()
		}
		out = append(out, ServiceInfo{Name: r.Name, State: state, Dependencies: r.Dependencies})
	}
	return out
}

// DisplaySummary prints the bootstrap summary including live health from the registry.
func (s *Summary) DisplaySummary(registry *component.Registry, container *di.Container) {
	w := s.out
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "🚀 %s v%s started in %.2fs\n\n",
		s.serviceName, s.version, s.startupDuration.Seconds())

	var components []ComponentInfo
	if registry != nil {
		components = Components(registry)
	}

	s.section("📡 Sources", filterType(components, "source"))
	s.section("📨 Categories", filterType(components, "category"))
	s.section("📦 Components", filterType(components, "component"))

	if container != nil {
		services := Services(container)
		if len(services) > 0 {
			fmt.Fprintf(w, "⚙️  Services (%d)\n", len(services))
			for i, svc := range services {
				fmt.Fprintf(w, "   %s %s %s (%s)\n", branch(i, len(services)), serviceIcon(svc.State), svc.Name, svc.State)
				for j, dep := range svc.Dependencies {
					indent := "│  "
					if i == len(services)-1 {
						indent = "   "
					}
					fmt.Fprintf(w, "   %s %s 🔗 %s\n", indent, branch(j, len(svc.Dependencies)), dep)
				}
			}
			fmt.Fprintf(w, "\n")
		}
	}

	if len(components) == 0 {
		fmt.Fprintf(w, "   └── No components registered\n")
	}

	if registry != nil {
		healthResults := registry.HealthAll(context.Background())
		if len(healthResults) > 0 {
			healthy := 0
			fmt.Fprintf(w, "🏥 Health Check\n")
			for i, h := range healthResults {
				msg := ""
				if h.Message != "" {
					msg = " - " + h.Message
				}
				fmt.Fprintf(w, "   %s %s %s: %s%s\n", branch(i, len(healthResults)), healthStatusIcon(h.Status), h.Name, h.Status, msg)
				if h.Status == component.StatusHealthy {
					healthy++
				}
			}
			fmt.Fprintf(w, "\n")
			if healthy == len(healthResults) {
				fmt.Fprintf(w, "✅ All components healthy (%d/%d)\n", healthy, len(healthResults))
			} else {
				fmt.Fprintf(w, "⚠️  Some components have issues (%d/%d healthy)\n", healthy, len(healthResults))
			}
		}
	}

	fmt.Fprintf(w, "\n")
}

func (s *Summary) section(title string, items []ComponentInfo) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(s.out, "%s\n", title)
	for i, c := range items {
		line := c.Name
		if c.Details != "" {
			line += ": " + c.Details
		}
		fmt.Fprintf(s.out, "   %s %s\n", branch(i, len(items)), line)
	}
	fmt.Fprintf(s.out, "\n")
}

func filterType(items []ComponentInfo, typ string) []ComponentInfo {
	var out []ComponentInfo
	for _, c := range items {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

func branch(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}

func serviceIcon(state string) string {
	switch state {
	case di.Initialized.String():
		return "✅"
	case "lazy":
		return "⚡"
	case di.InFlight.String():
		return "⏳"
	default:
		return "⏸️"
	}
}

func healthStatusIcon(status component.HealthStatus) string {
	switch status {
	case component.StatusHealthy:
		return "✅"
	case component.StatusDegraded:
		return "⚠️"
	case component.StatusUnhealthy:
		return "❌"
	default:
		return "❓"
	}
}
