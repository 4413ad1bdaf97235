package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss/v2"

	"queueforge/pkg/game"
	"queueforge/pkg/queue"
	"queueforge/pkg/store"
	"queueforge/pkg/types"
)

// --- Styles ---
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))
)

// Globals are shared by every subcommand.
type Globals struct {
	DB     string `help:"Path to the sqlite database." default:"./data/queueforge.db" env:"QUEUEFORGE_DATABASE_PATH"`
	Driver string `help:"sqlite driver to open the database with." default:"sqlite3" enum:"sqlite,sqlite3" env:"QUEUEFORGE_DATABASE_DRIVER"`
	Server string `help:"Base URL of a running server." default:"http://localhost:8080" env:"QUEUEFORGE_SERVER"`
}

func (g *Globals) open() (*store.SQLiteStore, error) {
	return store.Open(g.Driver, g.DB)
}

type CLI struct {
	Globals

	Planets      PlanetsCmd      `cmd:"" help:"List planets."`
	Queues       QueuesCmd       `cmd:"" help:"List stored queues."`
	Show         ShowCmd         `cmd:"" help:"Print a stored queue without settling it."`
	Settle       SettleCmd       `cmd:"" help:"Settle every queue of a planet now."`
	CreatePlanet CreatePlanetCmd `cmd:"" name:"create-planet" help:"Add a planet to the database."`
	Order        OrderCmd        `cmd:"" help:"Place an order through a running server."`
	Status       StatusCmd       `cmd:"" help:"Ask a running server for its status."`
}

// --- Database Commands ---

type PlanetsCmd struct{}

func (c *PlanetsCmd) Run(g *Globals) error {
	st, err := g.open()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	planets, err := st.Planets(ctx)
	if err != nil {
		return err
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("Planets (%d)", len(planets))))
	for _, p := range planets {
		state, err := st.State(ctx, p.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%4d  %-16s [%s]  %-7s %6dkm  %s\n", p.ID, p.Name, p.Coordinates(), p.Type, p.Diameter,
			dimStyle.Render(formatResources(state.Resources)))
	}
	return nil
}

type QueuesCmd struct{}

func (c *QueuesCmd) Run(g *Globals) error {
	st, err := g.open()
	if err != nil {
		return err
	}
	defer st.Close()

	qs, err := st.Queues(context.Background())
	if err != nil {
		return err
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("Queues (%d)", len(qs))))
	for _, q := range qs {
		updated := time.Unix(q.UpdatedAt, 0).Format(time.DateTime)
		fmt.Printf("planet %-4d %-9s %3d items  v%-4d %s\n", q.PlanetID, q.Category, q.Items, q.Version, dimStyle.Render(updated))
	}
	return nil
}

type ShowCmd struct {
	PlanetID int64  `arg:"" help:"Planet id."`
	Category string `arg:"" enum:"building,research,ship" help:"Queue category."`
}

func (c *ShowCmd) Run(g *Globals) error {
	st, err := g.open()
	if err != nil {
		return err
	}
	defer st.Close()

	category := types.Category(c.Category)
	snap, err := st.Load(context.Background(), c.PlanetID, category)
	if err != nil {
		return err
	}
	printQueue(queue.NewQueue(c.PlanetID, category, snap.Items), time.Now().Unix())
	return nil
}

type SettleCmd struct {
	PlanetID int64 `arg:"" help:"Planet id."`
}

func (c *SettleCmd) Run(g *Globals) error {
	st, err := g.open()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	engine := queue.NewEngine(st, game.NewPorts(st), queue.WithLockTimeout(5*time.Second))
	now := engine.Now()
	for _, category := range types.Categories {
		q, err := engine.RetrieveQueueAt(ctx, c.PlanetID, category, now)
		if err != nil {
			fmt.Println(errStyle.Render(fmt.Sprintf("%s: %v", category, err)))
			if q == nil {
				continue
			}
		}
		printQueue(q, now)
	}
	return nil
}

type CreatePlanetCmd struct {
	Name     string `required:"" help:"Planet name."`
	Owner    string `help:"Owner UUID."`
	Galaxy   int    `default:"1"`
	System   int    `default:"1"`
	Position int    `default:"8"`
	Metal    int64  `default:"500"`
	Crystal  int64  `default:"500"`
}

func (c *CreatePlanetCmd) Run(g *Globals) error {
	st, err := g.open()
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := st.CreatePlanet(context.Background(), game.GeneratePlanet(c.Owner, c.Name, c.Galaxy, c.System, c.Position), types.PlanetState{
		Resources: types.Resources{"metal": c.Metal, "crystal": c.Crystal},
	})
	if err != nil {
		return err
	}
	fmt.Println(activeStyle.Render(fmt.Sprintf("Created planet %d %q at [%s]", p.ID, p.Name, p.Coordinates())))
	return nil
}

// --- Server Commands ---

type OrderCmd struct {
	PlanetID int64  `arg:"" help:"Planet id."`
	Category string `arg:"" enum:"building,research,ship" help:"Queue category."`
	Kind     string `arg:"" help:"What to build, e.g. metal_mine."`
	Amount   int    `arg:"" optional:"" help:"Ship count."`
}

func (c *OrderCmd) Run(g *Globals) error {
	payload, _ := json.Marshal(map[string]any{
		"planet_id": c.PlanetID, "category": c.Category, "kind": c.Kind, "amount": c.Amount,
	})
	body, err := post(g.Server+"/api/order", payload)
	if err != nil {
		return err
	}
	var resp struct {
		Item         types.QueueItem `json:"item"`
		Cost         types.Resources `json:"cost"`
		QueueEndTime int64           `json:"queue_end_time"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Println(activeStyle.Render(fmt.Sprintf("Queued %s -> %d (%s)", resp.Item.TargetKind, resp.Item.LevelOrQuantity, resp.Item.ID)))
	fmt.Printf("Cost: %s | Duration: %s | Queue done: %s\n", formatResources(resp.Cost),
		time.Duration(resp.Item.Duration)*time.Second, time.Unix(resp.QueueEndTime, 0).Format(time.DateTime))
	return nil
}

type StatusCmd struct{}

func (c *StatusCmd) Run(g *Globals) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(g.Server + "/api/status")
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	fmt.Println(titleStyle.Render("Server " + g.Server))
	for _, k := range []string{"name", "version", "uptime", "database", "events"} {
		fmt.Printf("%-9s %v\n", k+":", status[k])
	}
	return nil
}

func post(url string, payload []byte) ([]byte, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// --- Output ---

func printQueue(q *queue.Queue, now int64) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Planet %d / %s", q.PlanetID(), q.Category())))
	active, ok := q.CurrentlyBuilding()
	if !ok {
		fmt.Println(dimStyle.Render("  (empty)"))
		return
	}
	fmt.Println(activeStyle.Render(fmt.Sprintf("  > %-24s %6d  %s left", active.TargetKind, active.LevelOrQuantity,
		time.Duration(active.Remaining(now))*time.Second)))
	for item := range q.Queued() {
		fmt.Printf("    %-24s %6d  %s\n", item.TargetKind, item.LevelOrQuantity, dimStyle.Render((time.Duration(item.Duration) * time.Second).String()))
	}
	if end := q.QueueEndTime(); end > 0 {
		fmt.Println(dimStyle.Render("  done at " + time.Unix(end, 0).Format(time.DateTime)))
	}
}

func formatResources(r types.Resources) string {
	return fmt.Sprintf("M:%d C:%d D:%d", r["metal"], r["crystal"], r["deuterium"])
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("queueforge-console"),
		kong.Description("Inspect and settle production queues."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
		os.Exit(1)
	}
}
