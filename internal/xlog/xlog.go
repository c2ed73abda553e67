// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package xlog is the singleton stdout(+file) logger shared across the pipeline.
// It writes no prefixes and forces no newlines, matching the bare fmt.Print* style
// the rest of the codebase uses for progress and diagnostic output.
package xlog

import (
	"bufio"
	"fmt"
	"os"

	"github.com/klauspost/cpuid"
)

var logFile *bufio.Writer
var logFileOS *os.File

// AlsoToFile mirrors all subsequent log output into fileName in addition to stdout.
func AlsoToFile(fileName string) (err error) {
	if logFile != nil {
		if err = logFile.Flush(); err != nil {
			return err
		}
		if err = logFileOS.Close(); err != nil {
			return err
		}
	}
	logFileOS, err = os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	logFile = bufio.NewWriter(logFileOS)
	return nil
}

func Printf(format string, args ...interface{}) {
	fmt.Printf(format, args...)
	if logFile != nil {
		fmt.Fprintf(logFile, format, args...)
	}
}

func Println(args ...interface{}) {
	fmt.Println(args...)
	if logFile != nil {
		fmt.Fprintln(logFile, args...)
	}
}

// Sync flushes and fsyncs the optional log file. Safe to call when no file is open.
func Sync() {
	if logFile == nil {
		return
	}
	logFile.Flush()
	logFileOS.Sync()
}

// LogCPUFeatures logs a single diagnostic line about the CPU's SIMD feature set.
// Nothing in this codebase dispatches to assembly based on these flags; this is
// informational only, since no AVX2 kernels ship in this tree.
func LogCPUFeatures() {
	Printf("CPU %s: AVX2=%v threads=%d\n", cpuid.CPU.BrandName,
		cpuid.CPU.AVX2(), cpuid.CPU.LogicalCores)
}
