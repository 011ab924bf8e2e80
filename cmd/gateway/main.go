// Command gateway runs the A2A Task Gateway: it loads the typed config
// surface, wires the Task Registry, Agent Bridge, and Executor together,
// and serves the Gateway's HTTP handler.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/wardenai/warden/internal/a2a"
	"github.com/wardenai/warden/internal/bridge"
	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/executor"
	"github.com/wardenai/warden/internal/gateway"
	"github.com/wardenai/warden/internal/kernel/org"
	"github.com/wardenai/warden/internal/kernel/roles"
	"github.com/wardenai/warden/internal/registry"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file; defaults to built-in defaults")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		cfg = loaded
	}

	reg := registry.New(cfg.Gateway.TaskQueue.MaxConcurrent, cfg.Gateway.TaskQueue.MaxQueued)

	br := bridge.New(bridge.Config{
		BaseURL:           cfg.Gateway.AgentConnection.BaseURL,
		APIKey:            cfg.Gateway.AgentConnection.APIKey,
		Timeout:           cfg.Gateway.AgentConnection.Timeout(),
		CancelTimeout:     cfg.Gateway.AgentConnection.CancelTimeout(),
		ReportsDir:        cfg.Gateway.ReportsDir,
		RequestsPerSecond: 0,
	})

	exec := executor.New(reg, br, cfg.Gateway.PollInterval())

	skills := discoverSkills(cfg)
	var domains []string
	seenDomain := map[string]bool{}
	for _, s := range skills {
		for _, tag := range s.Tags {
			if !seenDomain[tag] {
				seenDomain[tag] = true
				domains = append(domains, tag)
			}
		}
	}
	info := gateway.AgentCardInfo{
		Name:        "warden",
		Description: "A2A gateway fronting a PACE-hardened inner coding agent.",
		Skills:      skills,
		BSTDomains:  domains,
	}

	srv := gateway.New(cfg.Gateway, reg, br, exec, info, nil, nil)

	addr := cfg.Gateway.Host + ":" + portString(cfg.Gateway.Port)
	log.Printf("warden gateway listening on %s", addr)
	if err := http.ListenAndServe(addr, srv); err != nil {
		log.Fatalf("gateway server: %v", err)
	}
}

// discoverSkills implements spec.md §4.1's Agent Card rule: skills are the
// union of the active organization's role capabilities and the tool/plan
// library. Any piece being absent on disk (no active org, no roles, no
// plan library) degrades to an empty skill set rather than failing
// startup, matching the Org Kernel's own "absent -> no-op" convention.
func discoverSkills(cfg config.Config) []a2a.Skill {
	active, err := org.NewLoader(cfg.Gateway.OrgDir + "/active.json").Load()
	if err != nil || active == nil {
		return nil
	}
	profiles, err := roles.LoadDir(cfg.Gateway.RolesDir)
	if err != nil {
		return nil
	}
	planLibrary := loadPlanLibrary(cfg.Gateway.PlanLibraryPath)

	derived := roles.DeriveSkills(active.Hierarchy, profiles, planLibrary)
	skills := make([]a2a.Skill, 0, len(derived))
	for _, s := range derived {
		skills = append(skills, a2a.Skill{ID: s.ID, Name: s.Name, Description: s.Description, Tags: s.Tags})
	}
	return skills
}

func loadPlanLibrary(path string) map[string]string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var lib map[string]string
	if err := json.Unmarshal(raw, &lib); err != nil {
		return nil
	}
	return lib
}

func portString(port int) string {
	if port == 0 {
		port = 8080
	}
	return strconv.Itoa(port)
}
