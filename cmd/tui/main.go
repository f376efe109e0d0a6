// Binary tui is a terminal menu for editing the controller config and poking
// at its inputs and journal between sessions.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"warriorbot-go/internal/config"
	"warriorbot-go/internal/dataload"
	"warriorbot-go/internal/scanner"
	"warriorbot-go/internal/store"
)

type menuItem struct {
	label string
	run   func(*console) error
}

type console struct {
	in   *bufio.Reader
	path string
	cfg  *config.Config
}

func main() {
	path := flag.String("config", "internal/config/config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	c := &console{in: bufio.NewReader(os.Stdin), path: *path, cfg: cfg}

	menu := []menuItem{
		{"Show configuration summary", (*console).summary},
		{"Edit bankroll and risk limits", (*console).editRisk},
		{"Edit scanner settings", (*console).editScanner},
		{"Edit bridge settings", (*console).editBridge},
		{"Run premarket scan", (*console).scanPremarket},
		{"Show today's journaled instructions", (*console).journalTail},
		{"Save config", (*console).save},
		{"Reload config from disk", (*console).reload},
		{"Launch controller", func(c *console) error { return c.launch("./cmd/controller", "-config", c.path) }},
		{"Replay a CSV", (*console).replay},
	}

	for {
		fmt.Println("\n=== WarriorBot Control ===")
		for i, item := range menu {
			fmt.Printf("%d) %s\n", i+1, item.label)
		}
		fmt.Println("0) Exit")
		choice := c.prompt("Select option", "")
		if choice == "0" {
			return
		}
		n, err := strconv.Atoi(choice)
		if err != nil || n < 1 || n > len(menu) {
			fmt.Println("unknown option")
			continue
		}
		if err := menu[n-1].run(c); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", menu[n-1].label, err)
		}
	}
}

func (c *console) summary() error {
	cfg := c.cfg
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Bridge: %s %s (token set: %v)\n", cfg.Bridge.Transport, cfg.Bridge.Addr, cfg.Bridge.Token != "")
	fmt.Printf("Session: %02d:00-%02d:00 %s (ignore window: %v)\n", cfg.Session.StartHour, cfg.Session.EndHour, cfg.Session.Timezone, cfg.Session.IgnoreWindow)
	fmt.Printf("Starting cash: $%.2f | commission $%.4f/share (min $%.2f)\n", cfg.Paper.StartingCash, cfg.Paper.CommissionPerShare, cfg.Paper.MinCommission)
	fmt.Printf("Risk per trade: %.2f%% | notional cap: $%.2f\n", cfg.Risk.RiskPerTrade*100, cfg.Risk.MaxNotionalPerTrade)
	fmt.Printf("Daily loss limit: %.2f%% | max consecutive losses: %d\n", cfg.Risk.DailyMaxLoss*100, cfg.Risk.MaxConsecutiveLosses)
	fmt.Printf("Price band: $%.2f-$%.2f | max float: %.0f | min rel. volume: %.1f\n", cfg.Scanner.MinPrice, cfg.Scanner.MaxPrice, cfg.Scanner.MaxFloat, cfg.Scanner.MinRelativeVolume)
	fmt.Println("Watchlist:", strings.Join(cfg.Scanner.Watchlist, ", "))
	fmt.Println("Strategies:", strings.Join(cfg.Strategy.Modes, ", "))
	fmt.Println("Journal:", cfg.Journal.Path)
	return nil
}

func (c *console) editRisk() error {
	fmt.Println("\n--- Edit Risk / Bankroll ---")
	c.cfg.Paper.StartingCash = c.promptFloat("Starting cash", c.cfg.Paper.StartingCash)
	c.cfg.Risk.MaxNotionalPerTrade = c.promptFloat("Max notional per trade (USD)", c.cfg.Risk.MaxNotionalPerTrade)
	c.cfg.Risk.RiskPerTrade = c.promptFloat("Risk per trade (%)", c.cfg.Risk.RiskPerTrade*100) / 100
	c.cfg.Risk.DailyMaxLoss = c.promptFloat("Daily max loss (%)", c.cfg.Risk.DailyMaxLoss*100) / 100
	c.cfg.Risk.MaxConsecutiveLosses = int(c.promptFloat("Max consecutive losses", float64(c.cfg.Risk.MaxConsecutiveLosses)))
	return nil
}

func (c *console) editScanner() error {
	fmt.Println("\n--- Edit Scanner ---")
	line := c.prompt("Watchlist, comma-separated (- to clear)", strings.Join(c.cfg.Scanner.Watchlist, ","))
	c.cfg.Scanner.Watchlist = nil
	if line != "-" {
		for _, p := range strings.Split(line, ",") {
			if sym := strings.ToUpper(strings.TrimSpace(p)); sym != "" {
				c.cfg.Scanner.Watchlist = append(c.cfg.Scanner.Watchlist, sym)
			}
		}
	}
	c.cfg.Scanner.MinPrice = c.promptFloat("Min price", c.cfg.Scanner.MinPrice)
	c.cfg.Scanner.MaxPrice = c.promptFloat("Max price", c.cfg.Scanner.MaxPrice)
	c.cfg.Scanner.MaxFloat = c.promptFloat("Max float (shares)", c.cfg.Scanner.MaxFloat)
	c.cfg.Scanner.MinRelativeVolume = c.promptFloat("Min relative volume", c.cfg.Scanner.MinRelativeVolume)
	c.cfg.Scanner.QuotesPath = c.prompt("Premarket quotes CSV", c.cfg.Scanner.QuotesPath)
	return nil
}

func (c *console) editBridge() error {
	fmt.Println("\n--- Edit Bridge ---")
	c.cfg.Bridge.Transport = strings.ToLower(c.prompt("Transport (tcp, unix, ws)", c.cfg.Bridge.Transport))
	c.cfg.Bridge.Addr = c.prompt("Address", c.cfg.Bridge.Addr)
	c.cfg.Bridge.QueueSize = int(c.promptFloat("Instruction queue size", float64(c.cfg.Bridge.QueueSize)))
	return nil
}

func (c *console) scanPremarket() error {
	path := c.prompt("Quotes CSV", c.cfg.Scanner.QuotesPath)
	quotes, err := dataload.LoadQuotes(path)
	if err != nil {
		return err
	}
	hits := scanner.New(scanner.CriteriaFromConfig(c.cfg.Scanner)).ScanPremarket(quotes)
	fmt.Printf("%d of %d symbols qualify\n", len(hits), len(quotes))
	bySym := make(map[string]scanner.Quote, len(quotes))
	for _, q := range quotes {
		bySym[q.Symbol] = q
	}
	for _, sym := range hits {
		q := bySym[sym]
		fmt.Printf("  %-6s $%-7.2f gap %5.1f%%  rvol %4.1f  float %.1fM\n", sym, q.Price, q.GapPercent(), q.RelativeVolume(), q.Float/1e6)
	}
	if len(hits) > 0 && strings.EqualFold(c.prompt("Use as watchlist? (y/n)", "n"), "y") {
		c.cfg.Scanner.Watchlist = hits
	}
	return nil
}

func (c *console) journalTail() error {
	if c.cfg.Journal.Path == "" {
		return errors.New("journal.path is not set")
	}
	if _, err := os.Stat(c.cfg.Journal.Path); err != nil {
		return err
	}
	j, err := store.Open(c.cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	entries, err := j.Instructions(context.Background(), midnight)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no instructions today")
	}
	for _, e := range entries {
		inst := e.Instruction
		fmt.Printf("%s  %-7s %-6s %s  %s\n", e.RecordedAt.Format("15:04:05"), inst.Action, inst.Symbol, inst.Quantity, inst.Reason)
	}
	return nil
}

func (c *console) save() error {
	if err := config.Validate(c.cfg); err != nil {
		return fmt.Errorf("not saving, config invalid:\n%w", err)
	}
	if err := config.Save(c.path, c.cfg); err != nil {
		return err
	}
	fmt.Println("config saved")
	return nil
}

func (c *console) reload() error {
	cfg, err := config.Load(c.path)
	if err != nil {
		return err
	}
	c.cfg = cfg
	fmt.Println("config reloaded")
	return nil
}

func (c *console) replay() error {
	csv := c.prompt("Bars CSV", "")
	if csv == "" {
		return errors.New("no file given")
	}
	return c.launch("./cmd/replay", "-config", c.path, "-csv", csv, "-local")
}

// launch runs a sibling binary with go run until it exits or ENTER is pressed.
func (c *console) launch(pkg string, args ...string) error {
	fmt.Printf("Launching %s (ENTER to stop)...\n", pkg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", append([]string{"run", pkg}, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	_, _ = c.in.ReadString('\n')
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func (c *console) prompt(label, current string) string {
	if current != "" {
		fmt.Printf("%s [%s]: ", label, current)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := c.in.ReadString('\n')
	if line = strings.TrimSpace(line); line == "" {
		return current
	}
	return line
}

func (c *console) promptFloat(label string, current float64) float64 {
	raw := c.prompt(label, strconv.FormatFloat(current, 'f', -1, 64))
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %v\n", current)
		return current
	}
	return val
}
