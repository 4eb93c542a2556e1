// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSlice/pkg/ux"
	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/model"
	"github.com/AleutianAI/AleutianSlice/services/slicer/sla"
)

func newInspectCmd(a *app) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "inspect SCENE",
		Short: "Load a scene and describe its objects without slicing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInspect(cmd.Context(), args[0], sets)
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "override an option, key=value (repeatable)")
	return cmd
}

// objectInfo is what inspect reports per object.
type objectInfo struct {
	name      string
	volumes   int
	instances int
	facets    int
	size      [3]float32
	states    []model.PrintVolumeState
}

func (a *app) runInspect(_ context.Context, path string, sets []string) error {
	sc, bundle, err := loadScene(path, sets)
	if err != nil {
		return err
	}
	pcfg, err := config.ResolvePrint(bundle)
	if err != nil {
		return err
	}

	sc.Model.UpdatePrintVolumeState(sla.PrintVolume(pcfg))
	var infos []objectInfo
	for _, o := range sc.Model.Objects() {
		bb := o.BoundingBox()
		size := bb.Max.Sub(bb.Min)
		info := objectInfo{
			name:      o.Name,
			volumes:   o.VolumesCount(),
			instances: o.InstancesCount(),
			facets:    o.FacetsCount(),
			size:      [3]float32{size.X, size.Y, size.Z},
		}
		for _, inst := range o.Instances() {
			info.states = append(info.states, inst.PrintVolumeState())
		}
		infos = append(infos, info)
	}
	changed := config.Diff(config.Defaults(), config.Merge(config.Defaults(), bundle))
	multipart := sc.Model.LooksLikeMultipartObject()

	if a.printer.Mode == ux.ModeMachine {
		for _, in := range infos {
			fmt.Fprintf(a.out, "OBJECT\t%s\tvolumes=%d\tinstances=%d\tfacets=%d\tsize=%.3fx%.3fx%.3f\tvolume_state=%s\n",
				in.name, in.volumes, in.instances, in.facets, in.size[0], in.size[1], in.size[2], joinStates(in.states))
		}
		for _, k := range changed {
			fmt.Fprintf(a.out, "OPTION\t%s=%v\n", k, bundle[k])
		}
		fmt.Fprintf(a.out, "SCENE\tobjects=%d\tmultipart=%t\tfiles=%d\n", len(infos), multipart, len(sc.Files))
		return nil
	}

	a.printer.Title(fmt.Sprintf("Scene %s", path))
	for _, in := range infos {
		fmt.Fprintf(a.out, "  %s: %d volume(s), %d instance(s), %d facets, %.2f x %.2f x %.2f mm [%s]\n",
			in.name, in.volumes, in.instances, in.facets, in.size[0], in.size[1], in.size[2], joinStates(in.states))
	}
	if len(changed) > 0 {
		fmt.Fprintln(a.out, "  options:")
		for _, k := range changed {
			fmt.Fprintf(a.out, "    %s = %v\n", k, bundle[k])
		}
	}
	for _, in := range infos {
		for _, st := range in.states {
			if st != model.PrintVolumeInside {
				a.printer.Warning(fmt.Sprintf("%s has an instance %s the print volume", in.name, strings.ReplaceAll(st.String(), "_", " ")))
				break
			}
		}
	}
	if multipart {
		a.printer.Info("the objects look like parts of one multi-part object")
	}
	return nil
}

func joinStates(states []model.PrintVolumeState) string {
	parts := make([]string, len(states))
	for i, st := range states {
		parts[i] = st.String()
	}
	return strings.Join(parts, ",")
}
