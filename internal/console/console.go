// Package console is the interactive operator shell: a line-based command
// loop over the session gate, scope machine, policy admin, and strategy
// surfaces, rendered with lipgloss tables.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/harunnryd/gmvctl/internal/api"
	"github.com/harunnryd/gmvctl/internal/authflow"
	"github.com/harunnryd/gmvctl/internal/feedback"
	"github.com/harunnryd/gmvctl/internal/policyadmin"
	"github.com/harunnryd/gmvctl/internal/query"
	"github.com/harunnryd/gmvctl/internal/scope"
	"github.com/harunnryd/gmvctl/internal/session"
	"github.com/harunnryd/gmvctl/internal/strategy"
)

const queryWait = 15 * time.Second

var errExit = errors.New("exit")

type Handler func(ctx context.Context, args []string) error

type command struct {
	handler  Handler
	usage    string
	authFree bool
}

type Params struct {
	Gate    *session.Gate
	Flow    *authflow.Flow
	Machine *scope.Machine
	// ProductsFor builds the product view bound to one account; the console
	// calls it with whatever binding the scope currently points at.
	ProductsFor func(authID string) *scope.ProductsView
	Sync        *scope.SyncRunner
	Policies    *policyadmin.Controller
	GMVMax      *api.GMVMaxService
	TTB         *api.TTBService
	Bus         *feedback.Bus
	Cache       *query.Cache
	Out         io.Writer
}

type Console struct {
	gate        *session.Gate
	flow        *authflow.Flow
	machine     *scope.Machine
	productsFor func(authID string) *scope.ProductsView
	sync        *scope.SyncRunner
	policies    *policyadmin.Controller
	gmvmax      *api.GMVMaxService
	ttb         *api.TTBService
	bus         *feedback.Bus
	cache       *query.Cache
	render      *Renderer

	out      io.Writer
	commands map[string]command
}

func New(p Params) *Console {
	c := &Console{
		gate:        p.Gate,
		flow:        p.Flow,
		machine:     p.Machine,
		productsFor: p.ProductsFor,
		sync:        p.Sync,
		policies:    p.Policies,
		gmvmax:      p.GMVMax,
		ttb:         p.TTB,
		bus:         p.Bus,
		cache:       p.Cache,
		render:      NewRenderer(),
		out:         p.Out,
		commands:    make(map[string]command),
	}

	c.register("help", command{handler: c.cmdHelp, usage: "help", authFree: true})
	c.register("exit", command{handler: c.cmdExit, usage: "exit", authFree: true})
	c.register("quit", command{handler: c.cmdExit, usage: "quit", authFree: true})
	c.register("status", command{handler: c.cmdStatus, usage: "status", authFree: true})
	c.register("login", command{handler: c.cmdLogin, usage: "login <username> <password> [workspace-id]", authFree: true})
	c.register("init", command{handler: c.cmdOwnerInit, usage: "init <email> <password>", authFree: true})
	c.register("logout", command{handler: c.cmdLogout, usage: "logout"})
	c.register("bindings", command{handler: c.cmdBindings, usage: "bindings"})
	c.register("use", command{handler: c.cmdUse, usage: "use binding|mode|bc|advertiser|store <value>"})
	c.register("scope", command{handler: c.cmdScope, usage: "scope"})
	c.register("options", command{handler: c.cmdOptions, usage: "options [refresh]"})
	c.register("save-config", command{handler: c.cmdSaveConfig, usage: "save-config [autosync]"})
	c.register("products", command{handler: c.cmdProducts, usage: "products [page]"})
	c.register("sync", command{handler: c.cmdSync, usage: "sync [eligibility]"})
	c.register("policies", command{handler: c.cmdPolicies, usage: "policies"})
	c.register("policy", command{handler: c.cmdPolicy, usage: "policy page|filter|toggle|delete <args>"})
	c.register("metrics", command{handler: c.cmdMetrics, usage: "metrics <campaign-id> <from> <to> [creative|product|date]"})
	c.register("strategy", command{handler: c.cmdStrategy, usage: "strategy <campaign-id> [preview]"})
	return c
}

func (c *Console) register(name string, cmd command) {
	c.commands[name] = cmd
}

// Run reads commands until EOF or exit. Every command is followed by the
// current feedback notice, if one is pending.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, "gmvctl> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}

		if err := c.Dispatch(ctx, scanner.Text()); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintln(c.out, c.render.Notice(feedback.Notice{Tone: feedback.Error, Message: err.Error()}))
		}
		c.flushNotice()
	}
}

// Dispatch parses one input line and runs the matching command. A leading
// slash is accepted and ignored so muscle memory from chat-style consoles
// still works.
func (c *Console) Dispatch(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	parts, err := shlex.Split(strings.TrimPrefix(line, "/"))
	if err != nil {
		return fmt.Errorf("parse command: %w", err)
	}
	if len(parts) == 0 {
		return nil
	}

	name := strings.ToLower(parts[0])
	cmd, ok := c.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", name)
	}

	if !cmd.authFree && c.gate.Status() != session.Authenticated {
		return errors.New("not logged in, run: login <username> <password>")
	}
	return cmd.handler(ctx, parts[1:])
}

func (c *Console) flushNotice() {
	if c.bus == nil {
		return
	}
	if notice, ok := c.bus.Current(); ok {
		fmt.Fprintln(c.out, c.render.Notice(notice))
		c.bus.Dismiss()
	}
}

func (c *Console) cmdHelp(_ context.Context, _ []string) error {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == "quit" {
			continue
		}
		fmt.Fprintf(c.out, "  %s\n", c.commands[name].usage)
	}
	return nil
}

func (c *Console) cmdExit(_ context.Context, _ []string) error {
	return errExit
}

func (c *Console) cmdStatus(_ context.Context, _ []string) error {
	switch c.gate.Status() {
	case session.Authenticated:
		sess, _ := c.gate.Session()
		fmt.Fprintf(c.out, "Logged in as %s (workspace %s)\n", sess.Username, sess.WorkspaceID)
		fmt.Fprintln(c.out, c.render.Scope(c.machine.Selection()))
	case session.Unauthenticated:
		fmt.Fprintln(c.out, "Not logged in")
	default:
		fmt.Fprintln(c.out, "Session state unknown, server unreachable?")
	}
	return nil
}

func (c *Console) cmdLogin(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: login <username> <password> [workspace-id]")
	}
	username, password := args[0], args[1]

	var err error
	if len(args) >= 3 {
		_, err = c.flow.LoginWorkspace(ctx, username, password, true, args[2])
	} else {
		_, err = c.flow.Login(ctx, username, password, true)
	}

	var choice *session.WorkspaceChoiceError
	if errors.As(err, &choice) {
		fmt.Fprintln(c.out, "Multiple workspaces, pick one and retry with: login <username> <password> <workspace-id>")
		for _, tenant := range choice.Tenants {
			fmt.Fprintf(c.out, "  %s  %s\n", tenant.WorkspaceID, tenant.CompanyName)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	fmt.Fprintln(c.out, "Logged in")
	return c.hydrateScope(ctx)
}

func (c *Console) cmdOwnerInit(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: init <email> <password>")
	}
	if err := c.flow.OwnerInit(ctx, args[0], args[1]); err != nil {
		if errors.Is(err, authflow.ErrPasswordTooWeak) {
			return errors.New("password too weak, use 8+ characters mixing case, digits, and symbols")
		}
		if errors.Is(err, authflow.ErrAlreadyInitialized) {
			return errors.New("owner already initialized, log in instead")
		}
		return fmt.Errorf("owner init: %w", err)
	}
	fmt.Fprintln(c.out, "Owner account created, you are logged in")
	return c.hydrateScope(ctx)
}

func (c *Console) cmdLogout(ctx context.Context, _ []string) error {
	if err := c.flow.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	fmt.Fprintln(c.out, "Logged out")
	return nil
}

func (c *Console) hydrateScope(ctx context.Context) error {
	bindings, err := c.ttb.Bindings(ctx)
	if err != nil {
		return fmt.Errorf("list bindings: %w", err)
	}
	if err := c.machine.Hydrate(ctx, bindings); err != nil {
		return fmt.Errorf("restore scope: %w", err)
	}
	fmt.Fprintln(c.out, c.render.Scope(c.machine.Selection()))
	return nil
}

func (c *Console) cmdBindings(ctx context.Context, _ []string) error {
	bindings, err := c.ttb.Bindings(ctx)
	if err != nil {
		return fmt.Errorf("list bindings: %w", err)
	}
	fmt.Fprintln(c.out, c.render.Bindings(bindings))
	return nil
}

func (c *Console) cmdUse(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: use binding|mode|bc|advertiser|store <value>")
	}

	level, value := strings.ToLower(args[0]), args[1]
	switch level {
	case "binding":
		c.machine.SetBinding(value)
		if err := c.machine.LoadOptions(ctx); err != nil {
			return fmt.Errorf("load options: %w", err)
		}
	case "mode":
		mode := scope.Mode(strings.ToLower(value))
		if mode != scope.ModeStore && mode != scope.ModeProduct {
			return errors.New("mode is store or product")
		}
		c.machine.SetMode(mode)
	case "bc":
		c.machine.SetBC(value)
	case "advertiser":
		c.machine.SetAdvertiser(value)
	case "store":
		c.machine.SetStore(value)
	default:
		return fmt.Errorf("unknown scope level %q", level)
	}

	fmt.Fprintln(c.out, c.render.Scope(c.machine.Selection()))
	return nil
}

func (c *Console) cmdScope(_ context.Context, _ []string) error {
	fmt.Fprintln(c.out, c.render.Scope(c.machine.Selection()))

	if advs := c.machine.AdvertiserOptions(); len(advs) > 0 {
		fmt.Fprintln(c.out, "Advertisers:")
		for _, a := range advs {
			fmt.Fprintf(c.out, "  %s  %s\n", a.ID, a.Name)
		}
	}
	if stores := c.machine.StoreOptions(); len(stores) > 0 {
		fmt.Fprintln(c.out, "Stores:")
		for _, s := range stores {
			fmt.Fprintf(c.out, "  %s  %s\n", s.ID, s.Name)
		}
	}
	return nil
}

func (c *Console) cmdOptions(ctx context.Context, args []string) error {
	if len(args) > 0 && strings.EqualFold(args[0], "refresh") {
		if err := c.machine.RefreshOptions(ctx); err != nil {
			return fmt.Errorf("refresh options: %w", err)
		}
	} else if err := c.machine.LoadOptions(ctx); err != nil {
		return fmt.Errorf("load options: %w", err)
	}

	fmt.Fprint(c.out, c.render.OptionsSnapshot(c.machine.Snapshot()))
	return nil
}

func (c *Console) cmdSaveConfig(ctx context.Context, args []string) error {
	autoSync := len(args) > 0 && strings.EqualFold(args[0], "autosync")
	if err := c.machine.SaveConfig(ctx, autoSync); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Fprintln(c.out, "Scope saved server-side")
	return nil
}

func (c *Console) cmdProducts(_ context.Context, args []string) error {
	sel := c.machine.Selection()
	if !sel.Complete() {
		return errors.New("select an advertiser and store first")
	}

	page := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("bad page %q", args[0])
		}
		page = n
	}

	view := c.productsFor(sel.AuthID)
	snap, err := c.awaitQuery(func(notify func(query.Snapshot)) *query.Subscription {
		return view.Watch(sel, page, 0, notify)
	})
	if err != nil {
		return err
	}

	productPage, ok := snap.Data.(api.ProductPage)
	if !ok {
		return errors.New("unexpected products payload")
	}
	fmt.Fprintln(c.out, c.render.Products(productPage))
	return nil
}

func (c *Console) cmdSync(ctx context.Context, args []string) error {
	sel := c.machine.Selection()
	if sel.AdvertiserID == "" {
		return errors.New("select an advertiser first")
	}

	eligibility := ""
	if len(args) > 0 {
		eligibility = args[0]
	}

	if run, ok := c.sync.LastRun(sel.AuthID); ok {
		fmt.Fprintf(c.out, "Last run #%s (%s)\n", run.RunID, run.Status)
	}

	run, err := c.sync.Trigger(ctx, sel.AuthID, sel, eligibility)
	if err != nil {
		// The bus already carries the operator-facing message.
		return nil
	}
	fmt.Fprintf(c.out, "Run #%s finished: %s\n", run.ID, run.Status)
	return nil
}

func (c *Console) cmdPolicies(_ context.Context, _ []string) error {
	params := c.policies.Params()
	snap, err := c.awaitQuery(func(notify func(query.Snapshot)) *query.Subscription {
		return c.policies.Watch(params, notify)
	})
	if err != nil {
		return err
	}

	page, ok := snap.Data.(api.Page[api.Policy])
	if !ok {
		return errors.New("unexpected policies payload")
	}
	fmt.Fprintln(c.out, c.render.Policies(page))
	return nil
}

func (c *Console) cmdPolicy(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: policy page|filter|toggle|delete <args>")
	}

	switch strings.ToLower(args[0]) {
	case "page":
		if len(args) != 2 {
			return errors.New("usage: policy page <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return fmt.Errorf("bad page %q", args[1])
		}
		c.policies.SetPage(n)
		return c.cmdPolicies(ctx, nil)

	case "filter":
		if len(args) != 3 {
			return errors.New("usage: policy filter <provider|mode|domain|status> <value>")
		}
		c.policies.SetFilter(args[1], args[2])
		return c.cmdPolicies(ctx, nil)

	case "toggle":
		if len(args) != 3 {
			return errors.New("usage: policy toggle <id> on|off")
		}
		enabled := strings.EqualFold(args[2], "on")
		if !enabled && !strings.EqualFold(args[2], "off") {
			return fmt.Errorf("bad state %q, use on or off", args[2])
		}
		return c.policies.Toggle(ctx, args[1], enabled)

	case "delete":
		if len(args) != 2 {
			return errors.New("usage: policy delete <id>")
		}
		return c.policies.Delete(ctx, args[1])

	default:
		return fmt.Errorf("unknown policy action %q", args[0])
	}
}

func (c *Console) cmdMetrics(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return errors.New("usage: metrics <campaign-id> <from> <to> [creative|product|date]")
	}
	campaignID, from, to := args[0], args[1], args[2]

	sel := c.machine.Selection()
	if sel.AuthID == "" {
		return errors.New("select a binding first")
	}

	entries, err := c.gmvmax.Metrics(ctx, sel.AuthID, campaignID, from, to)
	if err != nil {
		return fmt.Errorf("fetch metrics: %w", err)
	}

	dimension := "date"
	if len(args) >= 4 {
		dimension = strings.ToLower(args[3])
	}

	var dim strategy.Dimension
	switch dimension {
	case "creative":
		dim = strategy.ByCreative
	case "product":
		dim = strategy.ByProduct
	case "date":
		dim = strategy.ByDate
	default:
		return fmt.Errorf("unknown dimension %q", dimension)
	}

	fmt.Fprintln(c.out, c.render.MetricsSummary(strategy.GroupBy(entries, dim), dimension))
	return nil
}

func (c *Console) cmdStrategy(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: strategy <campaign-id> [preview]")
	}
	campaignID := args[0]

	sel := c.machine.Selection()
	if sel.AuthID == "" {
		return errors.New("select a binding first")
	}

	editor := strategy.NewEditor(c.gmvmax, c.bus, c.cache, sel.AuthID, campaignID)
	if err := editor.Load(ctx); err != nil {
		return fmt.Errorf("load strategy: %w", err)
	}

	if len(args) >= 2 && strings.EqualFold(args[1], "preview") {
		out, err := editor.Preview(ctx)
		if err != nil {
			return fmt.Errorf("preview strategy: %w", err)
		}
		for _, key := range sortedKeys(out) {
			fmt.Fprintf(c.out, "  %s: %v\n", key, out[key])
		}
		return nil
	}

	draft := editor.Draft()
	fmt.Fprintf(c.out, "Enabled: %t\n", draft.Enabled)
	fmt.Fprintf(c.out, "Cooldown: %d min\n", draft.CooldownMinutes)
	if draft.MinRuntimeMinutes != nil {
		fmt.Fprintf(c.out, "Min runtime: %d min\n", *draft.MinRuntimeMinutes)
	}
	if draft.Thresholds.TargetROI != nil {
		fmt.Fprintf(c.out, "Target ROI: %.2f\n", *draft.Thresholds.TargetROI)
	}
	for _, rule := range draft.Rules {
		fmt.Fprintf(c.out, "Rule %s: %s %s %.2f -> %s\n", rule.ID, rule.Metric, rule.Op, rule.Value, rule.Action)
	}
	return nil
}

// awaitQuery opens a subscription, waits for it to settle, and closes it.
// Loading snapshots are skipped; the first Success or Error wins.
func (c *Console) awaitQuery(watch func(func(query.Snapshot)) *query.Subscription) (query.Snapshot, error) {
	updates := make(chan query.Snapshot, 16)
	sub := watch(func(snap query.Snapshot) {
		select {
		case updates <- snap:
		default:
		}
	})
	defer sub.Close()

	deadline := time.NewTimer(queryWait)
	defer deadline.Stop()

	for {
		select {
		case snap := <-updates:
			switch snap.State {
			case query.Success:
				return snap, nil
			case query.Error:
				return snap, fmt.Errorf("fetch: %w", snap.Err)
			}
		case <-deadline.C:
			return query.Snapshot{}, errors.New("timed out waiting for data")
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
