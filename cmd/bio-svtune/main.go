// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

/*
bio-svtune finds structural variants in a short-read sample with filtering
parameters tuned for its genome.  Genomes with known variants are simulated
from the reference, every parameter set of a range profile is used to call
variants in them, and the set with the best mean F1 is used on the sample.

  bio-svtune optimize -ref ref.fa -bam sample.bam -coverage sample.cov -out out

runs the whole pipeline.  The steps are also available as the simulate,
search, select, call and benchmark subcommands; report measures the accuracy
of the tuning in several simulation modes.  Settings may be given in a file
with -config; flags take precedence.
*/
package main

import (
	"os"

	"github.com/grailbio/base/grail"
	"v.io/x/lib/cmdline"
)

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-svtune",
		Short:    "Tune structural variant calling on simulated genomes",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdOptimize(),
			newCmdSimulate(),
			newCmdSearch(),
			newCmdSelect(),
			newCmdCall(),
			newCmdBenchmark(),
			newCmdReport(),
			newCmdUnit(),
		},
	}
}

func main() {
	shutdown := grail.Init()
	cmdline.HideGlobalFlagsExcept()
	env := cmdline.EnvFromOS()
	err := cmdline.ParseAndRun(newCmdRoot(), env, os.Args[1:])
	shutdown()
	os.Exit(cmdline.ExitCode(err, env.Stderr))
}
