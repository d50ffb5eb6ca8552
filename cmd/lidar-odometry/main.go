// Command lidar-odometry runs the odometry pipeline over a directory of PCD
// scans and writes the estimated trajectory to a text file, optionally
// streaming the live pose and local map over a websocket for viewing.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"lidarodom/odometry"
	"lidarodom/pointcloud"
	"lidarodom/web"
)

var logger = golog.NewDevelopmentLogger("lidar-odometry")

// Arguments for the command.
type Arguments struct {
	DataDir    string `flag:"data,required,usage=directory of .pcd scans (processed in lexical order)"`
	ConfigFile string `flag:"config,usage=pipeline config yaml"`
	OutFile    string `flag:"out,default=trajectory.txt,usage=trajectory output file"`
	ServeAddr  string `flag:"serve,usage=serve live pose/map on this address (e.g. :8081)"`
	MapEvery   int    `flag:"map-every,default=10,usage=include the local map in every Nth live update"`
}

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	cfg, err := odometry.LoadConfig(argsParsed.ConfigFile, logger)
	if err != nil {
		return err
	}
	pipeline := odometry.NewPipeline(cfg, logger)

	var server *web.Server
	if argsParsed.ServeAddr != "" {
		server = web.NewServer(logger)
		server.Start(argsParsed.ServeAddr)
		defer server.Close()
	}

	scans, err := listScans(argsParsed.DataDir)
	if err != nil {
		return err
	}
	logger.Infow("starting", "scans", len(scans), "config", cfg)

	start := time.Now()
	for i, fn := range scans {
		if ctx.Err() != nil {
			logger.Warn("interrupted; writing partial trajectory")
			break
		}
		frame, err := pointcloud.NewFromFile(fn)
		if err != nil {
			return errors.Wrapf(err, "cannot read scan %q", fn)
		}
		_, matched := pipeline.RegisterFrame(ctx, frame, nil)
		pose := pipeline.LastPose()
		logger.Debugw("frame registered",
			"frame", i,
			"scan", filepath.Base(fn),
			"matched", len(matched),
			"x", pose.T.X, "y", pose.T.Y, "z", pose.T.Z,
		)
		if server != nil {
			server.Broadcast(frameUpdate(pipeline, i, argsParsed.MapEvery))
		}
	}
	elapsed := time.Since(start)
	if len(scans) > 0 {
		logger.Infow("done",
			"elapsed", elapsed,
			"avg_per_frame", elapsed/time.Duration(len(scans)),
			"map_points", len(pipeline.LocalMap()),
		)
	}

	return writeTrajectory(pipeline, argsParsed.OutFile)
}

func listScans(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read data directory %q", dir)
	}
	var scans []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".pcd" {
			scans = append(scans, filepath.Join(dir, e.Name()))
		}
	}
	if len(scans) == 0 {
		return nil, errors.Errorf("no .pcd scans found in %q", dir)
	}
	sort.Strings(scans)
	return scans, nil
}

func frameUpdate(pipeline *odometry.Pipeline, frame, mapEvery int) web.FrameUpdate {
	pose := pipeline.LastPose()
	update := web.FrameUpdate{
		Frame:       frame,
		Translation: [3]float64{pose.T.X, pose.T.Y, pose.T.Z},
		Quaternion:  [4]float64{pose.R.Real, pose.R.Imag, pose.R.Jmag, pose.R.Kmag},
	}
	localMap := pipeline.LocalMap()
	update.MapPoints = len(localMap)
	if mapEvery > 0 && frame%mapEvery == 0 {
		update.Map = make([][3]float64, len(localMap))
		for i, p := range localMap {
			update.Map[i] = [3]float64{p.X, p.Y, p.Z}
		}
	}
	return update
}

// writeTrajectory writes one pose per line: frame index, translation, then
// rotation quaternion as qx qy qz qw.
func writeTrajectory(pipeline *odometry.Pipeline, fn string) (err error) {
	f, err := os.Create(fn)
	if err != nil {
		return errors.Wrapf(err, "cannot create trajectory file %q", fn)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	for i, pose := range pipeline.Trajectory() {
		if _, err := fmt.Fprintf(f, "%d %f %f %f %f %f %f %f\n",
			i,
			pose.T.X, pose.T.Y, pose.T.Z,
			pose.R.Imag, pose.R.Jmag, pose.R.Kmag, pose.R.Real,
		); err != nil {
			return err
		}
	}
	return nil
}
