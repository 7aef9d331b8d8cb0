package commands

import (
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/citegraph/config"
	"github.com/teranos/citegraph/display"
	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/logger"
	"github.com/teranos/citegraph/pipeline"
	"github.com/teranos/citegraph/sym"
)

// StagesCmd represents the stages command
var StagesCmd = &cobra.Command{
	Use:   "stages",
	Short: sym.Catalog + " List and validate the stage catalog",
	Long: sym.Catalog + ` stages — Catalog listing and validation

Lists the catalog's stages in execution order. With --watch, revalidates
the catalog file on every change — the authoring loop for custom catalogs.

Examples:
  citegraph stages
  citegraph stages --catalog ./my.yaml
  citegraph stages --catalog ./my.yaml --watch`,
	RunE: runStages,
}

var (
	stagesCatalogFlag string
	stagesWatchFlag   bool
)

func init() {
	StagesCmd.Flags().StringVar(&stagesCatalogFlag, "catalog", "", "Catalog path or URL (default: configured or embedded)")
	StagesCmd.Flags().BoolVar(&stagesWatchFlag, "watch", false, "Revalidate on file change")
	StagesCmd.Flags().Bool("json", false, "Output the catalog as JSON")
}

func runStages(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	catalogRef := stagesCatalogFlag
	if catalogRef == "" {
		catalogRef = cfg.Pipeline.Catalog
	}

	if stagesWatchFlag {
		if catalogRef == "" {
			return errors.New("--watch needs a catalog file (the embedded default cannot change)")
		}
		if strings.Contains(catalogRef, "://") {
			return errors.New("--watch only works with local catalog files")
		}
		return watchCatalog(cmd, catalogRef)
	}

	catalog, err := pipeline.LoadCatalog(catalogRef, logger.Logger)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(catalog)
	}

	renderCatalog(catalog)
	return nil
}

func renderCatalog(catalog *pipeline.Catalog) {
	data := pterm.TableData{{"Ord", "Stage", "Kind", "Target", "Depends on", "Timeout"}}
	for _, s := range catalog.Stages {
		target := ""
		switch s.Kind {
		case pipeline.StageKindNode:
			target = s.Node.Label
		case pipeline.StageKindRelationship:
			target = s.Rel.Type
		}
		timeout := ""
		if s.TimeoutSeconds > 0 {
			timeout = (time.Duration(s.TimeoutSeconds) * time.Second).String()
		}
		data = append(data, []string{
			pterm.Sprintf("%d", s.Ordinal),
			s.ID,
			string(s.Kind),
			target,
			strings.Join(s.DependsOn, ", "),
			timeout,
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	pterm.Printf("\n%s catalog %s: %d stages valid\n", sym.Pass, catalog.Version, len(catalog.Stages))
}

// watchCatalog revalidates the catalog whenever the file changes. Editors
// replace files rather than writing in place, so the parent directory is
// watched and events filtered by name.
func watchCatalog(cmd *cobra.Command, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, "resolving catalog path")
	}

	validate := func() {
		catalog, err := pipeline.LoadCatalog(abs, logger.Logger)
		if err != nil {
			pterm.Error.Printf("%s %v\n", sym.Fail, err)
			return
		}
		pterm.Success.Printf("%s catalog %s: %d stages valid\n", sym.Pass, catalog.Version, len(catalog.Stages))
	}
	validate()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating catalog watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrap(err, "watching catalog directory")
	}

	pterm.Info.Printf("Watching %s (ctrl-c to stop)\n", abs)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	// Debounce: editors fire several events per save.
	var timer *time.Timer
	debounced := make(chan struct{}, 1)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(500*time.Millisecond, func() {
				select {
				case debounced <- struct{}{}:
				default:
				}
			})
		case <-debounced:
			validate()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("Catalog watcher error", "error", err)
		case <-sig:
			return nil
		case <-cmd.Context().Done():
			return nil
		}
	}
}
