package main

import (
	"context"
	"fmt"
	"strings"

	"appideas.app/engine/internal/model"
	"appideas.app/engine/internal/report"
	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan, color.Bold)
	titleColor   = color.New(color.FgMagenta, color.Bold)
	dimColor     = color.New(color.Faint)
)

func printSuccess(format string, args ...any) {
	successColor.Printf("✔ "+format+"\n", args...)
}

func printError(format string, args ...any) {
	errorColor.Printf("✘ "+format+"\n", args...)
}

func printWarning(format string, args ...any) {
	warningColor.Printf("! "+format+"\n", args...)
}

func printInfo(format string, args ...any) {
	infoColor.Printf("› "+format+"\n", args...)
}

func printTitle(format string, args ...any) {
	titleColor.Printf(format+"\n", args...)
}

func printSeparator() {
	fmt.Println(strings.Repeat("─", 80))
}

// progressPrinter prints section progress as the pipeline reports it.
type progressPrinter struct{}

func (progressPrinter) SectionStatusChanged(_ context.Context, _ int64, key model.SectionKey, status model.SectionStatus) {
	if status == model.SectionStatusDone {
		successColor.Printf("  ✔ %s\n", report.Title(key))
		return
	}
	dimColor.Printf("  … %s\n", report.Title(key))
}
