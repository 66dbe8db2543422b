// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command plumb is a small embedding host for the plumb language.
// It presents the language's two entry points as subcommands:
//
//	plumb compile program.pl
//	plumb run program.pl fixtures.json
//	plumb run -manifest run.yaml
//
// A run manifest is a yaml file naming the program and one fixture
// file (a JSON array) per fixture name:
//
//	program: demo.pl
//	fixtures:
//	  xs: xs.json
//	  users: users.json
//	log: debug
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/plumblang/plumb"
	"github.com/plumblang/plumb/log"
	"github.com/plumblang/plumb/values"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: plumb compile <program>
       plumb run <program> <fixtures.json>
       plumb run -manifest <run.yaml>`)
	os.Exit(2)
}

func main() {
	log.Std.Level = log.ErrorLevel
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
	}
	switch flag.Arg(0) {
	case "compile":
		cmdCompile(flag.Args()[1:])
	case "run":
		cmdRun(flag.Args()[1:])
	default:
		usage()
	}
}

func cmdCompile(args []string) {
	flags := flag.NewFlagSet("compile", flag.ExitOnError)
	flags.Usage = usage
	flags.Parse(args)
	if flags.NArg() != 1 {
		usage()
	}
	program, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	result := plumb.Compile(string(program))
	if !result.OK {
		fmt.Fprintln(os.Stderr, result.Diagnostics)
		os.Exit(1)
	}
	fmt.Println("ok")
}

// manifest is the yaml run configuration: the program file, one
// fixture file per fixture name, and an optional log level.
type manifest struct {
	Program  string            `yaml:"program"`
	Fixtures map[string]string `yaml:"fixtures"`
	Log      string            `yaml:"log"`
}

func cmdRun(args []string) {
	flags := flag.NewFlagSet("run", flag.ExitOnError)
	manifestPath := flags.String("manifest", "", "yaml run manifest")
	debug := flags.Bool("debug", false, "trace stage application")
	flags.Usage = usage
	flags.Parse(args)

	var (
		program  string
		fixtures string
		level    = log.ErrorLevel
	)
	switch {
	case *manifestPath != "":
		if flags.NArg() != 0 {
			usage()
		}
		var m manifest
		p, err := os.ReadFile(*manifestPath)
		if err != nil {
			log.Fatal(err)
		}
		if err := yaml.Unmarshal(p, &m); err != nil {
			log.Fatalf("%s: %v", *manifestPath, err)
		}
		prog, err := os.ReadFile(m.Program)
		if err != nil {
			log.Fatal(err)
		}
		program = string(prog)
		fixtures, err = assembleFixtures(m.Fixtures)
		if err != nil {
			log.Fatal(err)
		}
		level, err = log.ParseLevel(m.Log)
		if err != nil {
			log.Fatalf("%s: %v", *manifestPath, err)
		}
	case flags.NArg() == 2:
		prog, err := os.ReadFile(flags.Arg(0))
		if err != nil {
			log.Fatal(err)
		}
		fix, err := os.ReadFile(flags.Arg(1))
		if err != nil {
			log.Fatal(err)
		}
		program, fixtures = string(prog), string(fix)
	default:
		usage()
	}
	if *debug {
		level = log.DebugLevel
	}
	log.Std.Level = level

	result := plumb.RunWithLogger(program, fixtures, log.Std)
	fmt.Println(result.Explain)
	fmt.Println(result.TablesJSON)
	fmt.Println(result.LogsJSON)
}

// assembleFixtures builds the fixtures object from per-name fixture
// files, each containing a JSON array. Names are emitted sorted so
// the assembled object is stable.
func assembleFixtures(files map[string]string) (string, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	var b bytes.Buffer
	b.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		p, err := os.ReadFile(files[name])
		if err != nil {
			return "", err
		}
		quoted, _ := values.EncodeJSON(values.NewStr(name))
		b.Write(quoted)
		b.WriteByte(':')
		b.Write(bytes.TrimSpace(p))
	}
	b.WriteByte('}')
	return b.String(), nil
}
