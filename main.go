/*
visionplay replays recorded UI interactions against a browser surface,
locating click targets by optical text recognition and feeding each pass
from a row of csv data.

Have a look at the README.md for more information.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/visionplay/visionplay/config"
	"github.com/visionplay/visionplay/datamap"
	"github.com/visionplay/visionplay/log"
	"github.com/visionplay/visionplay/playback"
	"github.com/visionplay/visionplay/recording"
	"github.com/visionplay/visionplay/surface"
	"github.com/visionplay/visionplay/types"
	"github.com/visionplay/visionplay/vision"
)

var version = "dev"

func printRowSummary(result *playback.Result) {
	slog.Info("printing playback summary")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Row", "Steps", "Status"})

	failed := 0
	executed := 0
	for _, r := range result.Rows {
		status := "ok"
		if r.Failed {
			status = fmt.Sprintf("failed: %v", r.Err)
			failed++
		}
		row := []string{strconv.Itoa(r.RowIndex), strconv.Itoa(r.StepsExecuted), status}
		if r.Failed {
			table.Rich(row, []tablewriter.Colors{{tablewriter.Normal, tablewriter.FgRedColor}, {tablewriter.Normal, tablewriter.FgRedColor}, {tablewriter.Normal, tablewriter.FgRedColor}})
		} else {
			table.Append(row)
		}
		executed += r.StepsExecuted
	}
	table.SetFooter([]string{"total", strconv.Itoa(executed), fmt.Sprintf("%d failed", failed)})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT})
	table.SetBorder(false)
	table.Render()
}

func main() {
	configLoc := flag.String("c", "./config.yaml", "The location of the configuration file.")
	recordingLoc := flag.String("rec", "./recording.yaml", "The location of the recording file.")
	dataLoc := flag.String("data", "", "The location of the csv data file. Each row is one playback pass.")
	printVersion := flag.Bool("v", false, "The version of visionplay.")
	debugFlag := flag.Bool("debug", false, "Prints debug logs and writes captured screenshots to files.")
	summaryFlag := flag.Bool("summary", false, "Print per-row playback summary at the end.")
	dryFlag := flag.Bool("dry", false, "Resolve and print all steps without executing anything.")

	flag.Parse()

	if *printVersion {
		buildInfo, ok := debug.ReadBuildInfo()
		if ok {
			if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
				fmt.Println(buildInfo.Main.Version)
				return
			}
		}
		fmt.Println(version)
		return
	}

	config.Debug = *debugFlag
	log.InitializeDefaultLogger()

	cfg, err := config.NewConfig(*configLoc)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		os.Exit(1)
	}
	if *debugFlag {
		cfg.Vision.DebugMode = true
	}

	rec, err := recording.LoadRecording(*recordingLoc)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		os.Exit(1)
	}
	if *dataLoc == "" {
		slog.Error("no data file given, use -data")
		os.Exit(1)
	}
	table, err := recording.LoadTable(*dataLoc)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		os.Exit(1)
	}
	slog.Info(fmt.Sprintf("loaded recording with %d steps and data with %d rows", len(rec.Steps), len(table.Rows)))

	if *dryFlag {
		labelToColumns := datamap.BuildLabelToColumns(table.Fields())
		stepToColumn := datamap.BuildStepToColumn(rec.Steps, labelToColumns)
		headerIndex := table.HeaderIndex()
		for rowIdx, row := range table.Rows {
			for stepIdx, step := range rec.Steps {
				res := datamap.ResolveStepValue(step, stepIdx, row, stepToColumn, table.Headers, headerIndex)
				fmt.Printf("row %d step %d [%s/%s] label=%q column=%q value=%q\n",
					rowIdx, stepIdx, res.Step.RecordedVia, res.Step.Event, res.Step.Label, res.Column, res.Step.Value)
			}
		}
		return
	}

	// os.Exit skips deferred cleanup, so the browser and tesseract
	// sessions are torn down inside run before the exit code is applied
	os.Exit(run(cfg, rec, table, *summaryFlag))
}

func run(cfg *config.Config, rec *types.Recording, table *types.Table, summary bool) int {
	if err := vision.Init(cfg.Vision); err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return 1
	}
	defer vision.CloseEngine()
	engine, err := vision.GetEngine()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return 1
	}

	surf, err := surface.NewChromeSurface(&cfg.Browser, &cfg.Vision)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return 1
	}
	defer surf.Close()

	player := playback.NewPlayer(surf, surf, surf, engine, cfg.Vision.ConfidenceThreshold)
	opts := playback.Options{
		OnConditionalTimeout: cfg.Playback.OnConditionalTimeout,
		Callbacks: playback.Callbacks{
			OnStepComplete: func(step types.Step, stepIndex, rowIndex int, success bool) {
				if !success {
					slog.Warn(fmt.Sprintf("step %d of row %d (%s) failed", stepIndex, rowIndex, step.Label))
				}
			},
			OnProgress: func(current, total int) {
				slog.Debug(fmt.Sprintf("progress: %d/%d", current, total))
			},
		},
	}

	result, err := player.Play(context.Background(), rec, table, opts)
	if err != nil {
		slog.Error(fmt.Sprintf("playback failed: %v", err))
	}
	if summary && result != nil {
		printRowSummary(result)
	}
	if err != nil || (result != nil && !result.Completed) {
		return 1
	}
	return 0
}
