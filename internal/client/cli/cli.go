// Package cli реализует команды консольного клиента: локальные операции
// над записями, синхронизацию с сервером, работу с конфликтами и
// запросы к истории состояния.
package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	clientapi "github.com/iudanet/finkeeper/internal/client/api"
	"github.com/iudanet/finkeeper/internal/client/auth"
	"github.com/iudanet/finkeeper/internal/client/data"
	"github.com/iudanet/finkeeper/internal/client/iocli"
	syncsvc "github.com/iudanet/finkeeper/internal/client/sync"
)

// Cli связывает команды с сервисами клиента
type Cli struct {
	io          iocli.IO
	apiClient   clientapi.ClientAPI
	authService auth.Service
	dataService *data.Service
	syncService syncsvc.Service
}

// New создает CLI поверх сервисов клиента
func New(
	io iocli.IO,
	apiClient clientapi.ClientAPI,
	authService auth.Service,
	dataService *data.Service,
	syncService syncsvc.Service,
) *Cli {
	return &Cli{
		io:          io,
		apiClient:   apiClient,
		authService: authService,
		dataService: dataService,
		syncService: syncService,
	}
}

// PrintUsage выводит справку по командам клиента
func PrintUsage() {
	fmt.Println("FinKeeper Client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  finkeeper [OPTIONS] COMMAND [ARGS]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version        Show version information")
	fmt.Println("  --server URL     Server URL (default: http://localhost:8080)")
	fmt.Println("  --db PATH        Path to local database (default: finkeeper-client.db)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  register                             Register new user")
	fmt.Println("  login                                Login to server")
	fmt.Println("  logout                               Logout and drop local session")
	fmt.Println("  status                               Show session and sync status")
	fmt.Println("  add                                  Add a financial record (interactive)")
	fmt.Println("  list [--all]                         List local records (--all includes deleted)")
	fmt.Println("  remove <id>                          Delete a record (soft delete)")
	fmt.Println("  sync                                 Synchronize local records with server")
	fmt.Println("  conflicts [open|resolved]            List version conflicts")
	fmt.Println("  resolve <id> <strategy>              Resolve a conflict (client_wins, server_wins, merge)")
	fmt.Println("  history state [at]                   Financial state at a point in time")
	fmt.Println("  history diff <from> <to>             Compare states between two points")
	fmt.Println("  history evolution <from> <to> [step] Balance evolution (daily, weekly, monthly)")
	fmt.Println("  history timeline <from> <to>         Narrated change log for a period")
	fmt.Println()
	fmt.Println("Timestamps accept RFC3339 or YYYY-MM-DD.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  finkeeper register")
	fmt.Println("  finkeeper add")
	fmt.Println("  finkeeper sync")
	fmt.Println("  finkeeper history state 2025-03-01")
	fmt.Println("  finkeeper history evolution 2025-03-01 2025-03-31 daily")
	fmt.Println("  finkeeper resolve b692f5c0-2d88-4aa1-a9e1-13aa6e4976d5 client_wins")
}

// parseTimeArg разбирает момент времени из аргумента команды.
// Принимает RFC3339 и короткую форму YYYY-MM-DD (полночь UTC).
func parseTimeArg(arg string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, arg); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", arg); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: use RFC3339 or YYYY-MM-DD", arg)
}

// formatClock печатает векторные часы в устойчивом виде
func formatClock(clock map[string]uint64) string {
	if len(clock) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(clock))
	for actor, counter := range clock {
		parts = append(parts, fmt.Sprintf("%s:%d", actor, counter))
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ", ") + "}"
}
