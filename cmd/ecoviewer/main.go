package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	fyne "fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/fsnotify/fsnotify"

	"github.com/SBS-jklumpp/ECOv2-Production-Analysis/src/dataset"
	"github.com/SBS-jklumpp/ECOv2-Production-Analysis/src/stats"
)

type uiState struct {
	app      fyne.App
	window   fyne.Window
	filePath string

	table    *dataset.Table
	result   *stats.Result
	statRows []stats.TableRow

	// selection and modes
	metric      dataset.Metric
	split       int
	selected    []string // chosen serials; empty means all
	yScaleMode  string   // "absolute" or "relative"
	useRelative bool
	watchFile   bool
	showHints   bool

	// widgets
	statsTable     *widget.Table
	serialChecks   *widget.CheckGroup
	splitEntry     *widget.Entry
	selectionLabel *widget.Label
	warningsLabel  *widget.Label
	earlyImgCanvas *canvas.Image
	lateImgCanvas  *canvas.Image

	// watch mode
	watcher     *fsnotify.Watcher
	watchedPath string
}

func main() {
	var (
		fileFlag       string
		metricFlag     string
		serialsFlag    string
		splitFlag      int
		screenshotsDir string
	)
	flag.StringVar(&fileFlag, "file", "", "Path to stability CSV")
	flag.StringVar(&metricFlag, "metric", string(dataset.MetricRAW), "Metric to plot (HGO, LGO, LTC, RAW, VMain)")
	flag.IntVar(&splitFlag, "split", stats.DefaultSplit, "Sample-count boundary between early and late ranges")
	flag.StringVar(&serialsFlag, "serials", "", "Comma-separated serials to compare (empty = all)")
	flag.StringVar(&screenshotsDir, "screenshots", "", "Render charts headlessly into this directory and exit")
	flag.Parse()
	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if screenshotsDir != "" {
		if err := RunScreenshotsMode(fileFlag, screenshotsDir, metricFlag, splitFlag, serialsFlag); err != nil {
			fmt.Fprintf(os.Stderr, "screenshots: %v\n", err)
			os.Exit(1)
		}
		return
	}

	a := app.NewWithID("com.ecov2.viewer")
	w := a.NewWindow("ECOv2 Stability Data Analysis")
	w.Resize(fyne.NewSize(1100, 800))

	state := &uiState{
		app:         a,
		window:      w,
		filePath:    fileFlag,
		metric:      dataset.MetricRAW,
		split:       stats.DefaultSplit,
		yScaleMode:  "relative",
		useRelative: true,
	}
	// Load toggles early so the checkboxes reflect them on creation.
	state.showHints = a.Preferences().BoolWithFallback("showHints", false)
	state.watchFile = a.Preferences().BoolWithFallback("watchFile", false)

	// top bar controls
	fileLabel := widget.NewLabel(truncatePath(state.filePath, 60))
	// Create controls without callbacks first; they are wired after the
	// chart canvases exist.
	metricSelect := widget.NewSelect(metricOptions(), nil)
	metricSelect.Selected = string(state.metric)
	yScaleSelect := widget.NewSelect([]string{"Relative", "Absolute"}, nil)
	if state.useRelative {
		yScaleSelect.Selected = "Relative"
	} else {
		yScaleSelect.Selected = "Absolute"
	}
	state.splitEntry = widget.NewEntry()
	state.splitEntry.SetText(strconv.Itoa(state.split))
	watchChk := widget.NewCheck("Watch", nil)
	watchChk.SetChecked(state.watchFile)
	hintsChk := widget.NewCheck("Hints", nil)
	hintsChk.SetChecked(state.showHints)

	// serial checklist (options filled after first load)
	state.serialChecks = widget.NewCheckGroup(nil, nil)
	serialsScroll := container.NewVScroll(state.serialChecks)
	serialsScroll.SetMinSize(fyne.NewSize(190, 520))
	clearSel := widget.NewButton("Clear", func() {
		state.selected = nil
		state.serialChecks.Selected = nil
		state.serialChecks.Refresh()
		recompute(state)
	})

	// status line under the charts
	state.selectionLabel = widget.NewLabel("")
	state.warningsLabel = widget.NewLabel("")
	state.warningsLabel.Wrapping = fyne.TextWrapWord

	// statistics table (per serial, channel and metric)
	state.statsTable = widget.NewTable(
		// size provider: 1 header row + data rows; 6 columns
		func() (int, int) {
			rows := len(state.statRows) + 1
			if rows < 1 {
				rows = 1
			}
			return rows, 6
		},
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.TableCellID, o fyne.CanvasObject) {
			lbl := o.(*widget.Label)
			if id.Row == 0 {
				switch id.Col {
				case 0:
					lbl.SetText("Serial")
				case 1:
					lbl.SetText("Channel")
				case 2:
					lbl.SetText("Metric")
				case 3:
					lbl.SetText("Mean")
				case 4:
					lbl.SetText("StdDev")
				case 5:
					lbl.SetText("N")
				}
				return
			}
			rix := id.Row - 1
			if rix < 0 || rix >= len(state.statRows) {
				lbl.SetText("")
				return
			}
			row := state.statRows[rix]
			switch id.Col {
			case 0:
				lbl.SetText(row.Serial)
			case 1:
				lbl.SetText(fmt.Sprintf("%d", row.Channel))
			case 2:
				lbl.SetText(string(row.Metric))
			case 3:
				lbl.SetText(fmt.Sprintf("%.4f", row.Mean))
			case 4:
				lbl.SetText(fmt.Sprintf("%.4f", row.StdDev))
			case 5:
				lbl.SetText(fmt.Sprintf("%d", row.N))
			}
		},
	)
	state.statsTable.SetColumnWidth(0, 170)
	state.statsTable.SetColumnWidth(1, 80)
	state.statsTable.SetColumnWidth(2, 80)
	state.statsTable.SetColumnWidth(3, 120)
	state.statsTable.SetColumnWidth(4, 120)
	state.statsTable.SetColumnWidth(5, 70)

	// chart placeholders
	state.earlyImgCanvas = canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 100, 60)))
	state.earlyImgCanvas.FillMode = canvas.ImageFillContain
	state.earlyImgCanvas.SetMinSize(fyne.NewSize(900, 320))
	state.lateImgCanvas = canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 100, 60)))
	state.lateImgCanvas.FillMode = canvas.ImageFillContain
	state.lateImgCanvas.SetMinSize(fyne.NewSize(900, 320))

	// layout
	top := container.NewHBox(
		widget.NewButton("Open…", func() { openFileDialog(state, fileLabel) }),
		widget.NewButton("Reload", func() { loadAll(state, fileLabel) }),
		widget.NewLabel("Metric:"), metricSelect,
		widget.NewLabel("Split:"), state.splitEntry,
		widget.NewLabel("Y-Scale:"), yScaleSelect,
		watchChk, hintsChk,
		widget.NewLabel("File:"), fileLabel,
	)
	chartsColumn := container.NewVBox(
		state.earlyImgCanvas,
		widget.NewSeparator(),
		state.lateImgCanvas,
	)
	chartsScroll := container.NewVScroll(chartsColumn)
	chartsScroll.SetMinSize(fyne.NewSize(900, 640))
	serialsBox := container.NewBorder(
		container.NewVBox(widget.NewLabel("Serials:"), clearSel), nil, nil, nil,
		serialsScroll,
	)
	chartsTab := container.NewBorder(nil, nil, serialsBox, nil, chartsScroll)
	tabs := container.NewAppTabs(
		container.NewTabItem("Charts", chartsTab),
		container.NewTabItem("Statistics", state.statsTable),
	)
	tabs.SetTabLocation(container.TabLocationTop)
	tabs.OnSelected = func(ti *container.TabItem) {
		if state != nil && state.app != nil {
			state.app.Preferences().SetInt("selectedTabIndex", tabs.SelectedIndex())
		}
	}
	statusBar := container.NewVBox(state.selectionLabel, state.warningsLabel)
	content := container.NewBorder(top, statusBar, nil, nil, tabs)
	w.SetContent(content)

	// Redraw charts on window resize so they scale with width
	if w.Canvas() != nil {
		prevW := int(w.Canvas().Size().Width)
		done := make(chan struct{})
		w.SetOnClosed(func() {
			savePrefs(state)
			stopWatcher(state)
			close(done)
		})
		go func() {
			t := time.NewTicker(300 * time.Millisecond)
			defer t.Stop()
			for {
				select {
				case <-done:
					return
				case <-t.C:
					c := w.Canvas()
					if c == nil {
						continue
					}
					sz := c.Size()
					curW := int(sz.Width)
					if curW != prevW {
						prevW = curW
						fyne.Do(func() { redrawCharts(state) })
					}
				}
			}
		}()
	}

	// Now that canvases are ready, assign the control callbacks
	metricSelect.OnChanged = func(v string) {
		if m, err := dataset.ParseMetric(v); err == nil {
			state.metric = m
		}
		savePrefs(state)
		recompute(state)
	}
	yScaleSelect.OnChanged = func(v string) {
		if strings.EqualFold(v, "Relative") {
			state.yScaleMode = "relative"
			state.useRelative = true
		} else {
			state.yScaleMode = "absolute"
			state.useRelative = false
		}
		savePrefs(state)
		redrawCharts(state)
	}
	state.splitEntry.OnSubmitted = func(v string) {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			state.splitEntry.SetText(strconv.Itoa(state.split))
			return
		}
		if n != state.split {
			state.split = n
			savePrefs(state)
			recompute(state)
		}
	}
	state.serialChecks.OnChanged = func(sel []string) {
		state.selected = sel
		recompute(state)
	}
	watchChk.OnChanged = func(b bool) {
		state.watchFile = b
		savePrefs(state)
		restartWatcher(state, fileLabel)
	}
	hintsChk.OnChanged = func(b bool) {
		state.showHints = b
		savePrefs(state)
		redrawCharts(state)
	}

	// menus, prefs, initial load
	buildMenus(state, fileLabel)
	loadPrefs(state, fileLabel, metricSelect, yScaleSelect, watchChk, hintsChk, tabs)
	// Explicit flags win over remembered preferences.
	if explicit["file"] {
		state.filePath = fileFlag
		fileLabel.SetText(truncatePath(state.filePath, 60))
	}
	if explicit["metric"] {
		if m, err := dataset.ParseMetric(metricFlag); err == nil {
			state.metric = m
			metricSelect.Selected = string(m)
		}
	}
	if explicit["split"] && splitFlag >= 0 {
		state.split = splitFlag
		state.splitEntry.SetText(strconv.Itoa(splitFlag))
	}
	if explicit["serials"] {
		state.selected = splitSerials(serialsFlag)
	}
	loadAll(state, fileLabel)

	w.ShowAndRun()
}

// menus and dialogs
func buildMenus(state *uiState, fileLabel *widget.Label) {
	if state == nil || state.window == nil || state.app == nil {
		return
	}
	var items []*fyne.MenuItem
	for _, f := range recentFiles(state) {
		f := f
		items = append(items, fyne.NewMenuItem(truncatePath(f, 60), func() {
			state.filePath = f
			fileLabel.SetText(truncatePath(state.filePath, 60))
			savePrefs(state)
			loadAll(state, fileLabel)
		}))
	}
	clearRecent := fyne.NewMenuItem("Clear Recent", func() { clearRecentFiles(state); buildMenus(state, fileLabel) })
	recentMenu := fyne.NewMenu("Open Recent", append(items, clearRecent)...)
	exportEarly := fyne.NewMenuItem("Export Early Chart…", func() { exportChartPNG(state, state.earlyImgCanvas, "early_range.png") })
	exportLate := fyne.NewMenuItem("Export Late Chart…", func() { exportChartPNG(state, state.lateImgCanvas, "late_range.png") })
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open…", func() { openFileDialog(state, fileLabel) }),
		fyne.NewMenuItem("Reload", func() { loadAll(state, fileLabel) }),
		fyne.NewMenuItemSeparator(),
		exportEarly,
		exportLate,
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", func() { state.window.Close() }),
	)
	mainMenu := fyne.NewMainMenu(fileMenu, recentMenu)
	state.window.SetMainMenu(mainMenu)

	canv := state.window.Canvas()
	if canv != nil {
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyO, Modifier: fyne.KeyModifierSuper}, func(fyne.Shortcut) { openFileDialog(state, fileLabel) })
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyO, Modifier: fyne.KeyModifierControl}, func(fyne.Shortcut) { openFileDialog(state, fileLabel) })
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyR, Modifier: fyne.KeyModifierSuper}, func(fyne.Shortcut) { loadAll(state, fileLabel) })
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyR, Modifier: fyne.KeyModifierControl}, func(fyne.Shortcut) { loadAll(state, fileLabel) })
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyW, Modifier: fyne.KeyModifierSuper}, func(fyne.Shortcut) { state.window.Close() })
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyW, Modifier: fyne.KeyModifierControl}, func(fyne.Shortcut) { state.window.Close() })
	}
}

// file open dialog
func openFileDialog(state *uiState, fileLabel *widget.Label) {
	d := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil || rc == nil {
			return
		}
		defer rc.Close()
		state.filePath = rc.URI().Path()
		fileLabel.SetText(truncatePath(state.filePath, 60))
		addRecentFile(state, state.filePath)
		buildMenus(state, fileLabel)
		savePrefs(state)
		loadAll(state, fileLabel)
	}, state.window)
	d.Show()
}

// loadAll loads the CSV, rebuilds the serial checklist and recomputes.
func loadAll(state *uiState, fileLabel *widget.Label) {
	if state.filePath == "" {
		if _, err := os.Stat("data.csv"); err == nil {
			state.filePath = "data.csv"
			if fileLabel != nil {
				fileLabel.SetText(truncatePath(state.filePath, 60))
			}
		} else {
			return
		}
	}
	table, err := dataset.LoadFile(state.filePath)
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	state.table = table
	state.statRows = stats.SummaryTable(table)
	fmt.Printf("[viewer] loaded %d rows, %d runs, %d serials from %s\n",
		table.Len(), len(table.Groups()), len(table.Serials()), state.filePath)

	// Rebuild the serial checklist, keeping selections that still exist.
	opts := table.Serials()
	keep := make([]string, 0, len(state.selected))
	for _, s := range state.selected {
		for _, o := range opts {
			if s == o {
				keep = append(keep, s)
				break
			}
		}
	}
	state.selected = keep
	if state.serialChecks != nil {
		state.serialChecks.Options = opts
		state.serialChecks.Selected = keep
		state.serialChecks.Refresh()
	}
	if state.statsTable != nil {
		state.statsTable.Refresh()
	}
	restartWatcher(state, fileLabel)
	recompute(state)
}

// recompute runs the statistics for the current selection and redraws.
func recompute(state *uiState) {
	if state.table == nil {
		if state.selectionLabel != nil {
			state.selectionLabel.SetText("")
		}
		if state.warningsLabel != nil {
			state.warningsLabel.SetText("")
		}
		redrawCharts(state)
		return
	}
	res, err := stats.Summarize(state.table, stats.Request{Serials: state.selected, Metric: state.metric, Split: state.split})
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	state.result = res
	fmt.Printf("[viewer] %s: metric=%s split=%d warnings=%d\n", res.Label, res.Metric, res.Split, len(res.Warnings))
	if state.selectionLabel != nil {
		state.selectionLabel.SetText(res.Label)
	}
	if state.warningsLabel != nil {
		state.warningsLabel.SetText(warningText(state))
	}
	redrawCharts(state)
}

// warningText joins selection warnings with normalization notes for the
// status line. Empty when there is nothing to report.
func warningText(state *uiState) string {
	var parts []string
	if state.table != nil {
		parts = append(parts, state.table.Notes()...)
	}
	if state.result != nil {
		parts = append(parts, state.result.Warnings...)
	}
	if len(parts) == 0 {
		return ""
	}
	return "⚠ " + strings.Join(parts, "; ")
}

func redrawCharts(state *uiState) {
	earlyImg := renderRangeChart(state, rangeEarly)
	if earlyImg != nil && state.earlyImgCanvas != nil {
		state.earlyImgCanvas.Image = earlyImg
		cw, chh := chartSize(state)
		state.earlyImgCanvas.SetMinSize(fyne.NewSize(float32(cw), float32(chh)))
		state.earlyImgCanvas.Refresh()
	}
	lateImg := renderRangeChart(state, rangeLate)
	if lateImg != nil && state.lateImgCanvas != nil {
		state.lateImgCanvas.Image = lateImg
		cw, chh := chartSize(state)
		state.lateImgCanvas.SetMinSize(fyne.NewSize(float32(cw), float32(chh)))
		state.lateImgCanvas.Refresh()
	}
}

// watch mode: reload the file automatically when it changes on disk.
func stopWatcher(state *uiState) {
	if state.watcher != nil {
		_ = state.watcher.Close()
		state.watcher = nil
		state.watchedPath = ""
	}
}

func restartWatcher(state *uiState, fileLabel *widget.Label) {
	if !state.watchFile || state.filePath == "" {
		stopWatcher(state)
		return
	}
	if state.watcher != nil && state.watchedPath == state.filePath {
		return
	}
	stopWatcher(state)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Printf("[viewer] watch init error: %v\n", err)
		return
	}
	// Watch the directory rather than the file itself: editors and
	// exporters often replace the file via rename.
	dir := filepath.Dir(state.filePath)
	if err := w.Add(dir); err != nil {
		fmt.Printf("[viewer] watch %s error: %v\n", dir, err)
		_ = w.Close()
		return
	}
	state.watcher = w
	state.watchedPath = state.filePath
	target := filepath.Base(state.filePath)
	go func() {
		var pending *time.Timer
		for {
			select {
			case evt, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				// Debounce bursts of writes into one reload.
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(250*time.Millisecond, func() {
					fyne.Do(func() { loadAll(state, fileLabel) })
				})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				fmt.Printf("[viewer] watch error: %v\n", err)
			}
		}
	}()
	fmt.Printf("[viewer] watching %s for changes\n", state.filePath)
}

// recent files helpers
func recentFiles(state *uiState) []string {
	prefs := state.app.Preferences()
	raw := prefs.StringWithFallback("recentFiles", "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func addRecentFile(state *uiState, path string) {
	prefs := state.app.Preferences()
	list := recentFiles(state)
	filtered := []string{path}
	for _, f := range list {
		if f != path && len(filtered) < 10 {
			filtered = append(filtered, f)
		}
	}
	prefs.SetString("recentFiles", strings.Join(filtered, "\n"))
}

func clearRecentFiles(state *uiState) {
	if state == nil || state.app == nil {
		return
	}
	state.app.Preferences().SetString("recentFiles", "")
}

// prefs
func savePrefs(state *uiState) {
	if state == nil || state.app == nil {
		return
	}
	prefs := state.app.Preferences()
	prefs.SetString("lastFile", state.filePath)
	prefs.SetString("metric", string(state.metric))
	prefs.SetInt("splitBoundary", state.split)
	prefs.SetString("yScaleMode", state.yScaleMode)
	prefs.SetBool("watchFile", state.watchFile)
	prefs.SetBool("showHints", state.showHints)
}

func loadPrefs(state *uiState, fileLabel *widget.Label, metricSel, yScale *widget.Select, watchChk, hintsChk *widget.Check, tabs *container.AppTabs) {
	if state == nil || state.app == nil {
		return
	}
	prefs := state.app.Preferences()
	if f := prefs.StringWithFallback("lastFile", state.filePath); f != "" {
		state.filePath = f
		if fileLabel != nil {
			fileLabel.SetText(truncatePath(state.filePath, 60))
		}
	}
	if m, err := dataset.ParseMetric(prefs.StringWithFallback("metric", string(state.metric))); err == nil {
		state.metric = m
	}
	if metricSel != nil {
		metricSel.Selected = string(state.metric)
	}
	if n := prefs.IntWithFallback("splitBoundary", state.split); n >= 0 {
		state.split = n
		if state.splitEntry != nil {
			state.splitEntry.SetText(strconv.Itoa(n))
		}
	}
	ymode := prefs.StringWithFallback("yScaleMode", state.yScaleMode)
	switch ymode {
	case "absolute", "relative":
		state.yScaleMode = ymode
	}
	state.useRelative = strings.EqualFold(state.yScaleMode, "relative")
	if yScale != nil {
		if state.useRelative {
			yScale.Selected = "Relative"
		} else {
			yScale.Selected = "Absolute"
		}
	}
	state.watchFile = prefs.BoolWithFallback("watchFile", state.watchFile)
	if watchChk != nil {
		watchChk.SetChecked(state.watchFile)
	}
	state.showHints = prefs.BoolWithFallback("showHints", state.showHints)
	if hintsChk != nil {
		hintsChk.SetChecked(state.showHints)
	}
	if tabs != nil {
		idx := prefs.IntWithFallback("selectedTabIndex", 0)
		if idx >= 0 && idx < len(tabs.Items) {
			tabs.SelectIndex(idx)
		}
	}
}

// utils
func truncatePath(p string, n int) string {
	if len(p) <= n {
		return p
	}
	base := filepath.Base(p)
	if len(base)+4 >= n {
		return "..." + base
	}
	dir := filepath.Dir(p)
	left := n - len(base) - 4
	if left <= 0 {
		return "..." + base
	}
	if len(dir) > left {
		dir = dir[:left]
	}
	return dir + "/..." + base
}

// metricOptions lists the metric names for the select widget.
func metricOptions() []string {
	ms := dataset.Metrics()
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = string(m)
	}
	return out
}

// splitSerials parses a comma-separated serial list, dropping empty entries.
func splitSerials(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
