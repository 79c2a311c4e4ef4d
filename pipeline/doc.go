// Copyright 2026 MNIST ML Project Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package pipeline builds, trains and evaluates digit classifiers.
//
// # Overview
//
// A Pipeline owns one model at a time and moves through the states
// Empty, Compiled and Trained. Lifecycle calls never overlap: a call made
// while another is running fails with ErrPipelineBusy. Every tensor created
// during a call is released before it returns.
//
// # Basic Usage
//
//	rt, err := pipeline.OpenEngine("cpu")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	src, err := pipeline.SyntheticSource(rt, 6000, 1000, 1)
//	if err != nil {
//	    return err
//	}
//	p := pipeline.New(rt, src, pipeline.ConsoleReporter(os.Stdout))
//	if err := p.InitModel("tutorial"); err != nil {
//	    return err
//	}
//	if _, err := p.Train(pipeline.DefaultTrainConfig()); err != nil {
//	    return err
//	}
package pipeline
