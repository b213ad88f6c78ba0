/*
Copyright © 2021 the AerPrep authors.
This file is part of AerPrep.

AerPrep is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

AerPrep is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with AerPrep.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package aerpreputil holds the command-line interface and configuration
// handling for AerPrep.
package aerpreputil

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/aerprep"
	"github.com/spatialmodel/aerprep/cloud"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to AerPrep.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum severity of log messages to print:
              one of "debug", "info", "warning", or "error".`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LinkGeometries",
			usage: `
              LinkGeometries is the path to the road network links. It can be
              a shapefile (with accompanying .dbf and .prj files) or a GeoJSON
              FeatureCollection. The path can be local, an http(s) URL, or a
              blob storage location and can include environment variables.`,
			shorthand:  "l",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Emissions",
			usage: `
              Emissions is the path to the link emissions table, as a CSV
              or XLSX file with columns "linkID", "pollutantID", and "emquant".
              The path can be local, an http(s) URL, or a blob storage location
              and can include environment variables.`,
			shorthand:  "e",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "PollutantID",
			usage: `
              PollutantID is the MOVES pollutant ID of the emissions to use.`,
			defaultVal: aerprep.DefaultPollutantID,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "SR",
			usage: `
              SR gives the planar spatial reference of the sources and receptors
              in Proj4 or WKT format. Its units must be meters.`,
			defaultVal: aerprep.DefaultSR,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "InputSR",
			usage: `
              InputSR gives the spatial reference of GeoJSON link geometries
              in Proj4 or WKT format. Shapefile inputs use their .prj file instead.`,
			defaultVal: aerprep.LongLatSR,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LaneWidth",
			usage: `
              LaneWidth is the width of one traffic lane in meters.`,
			defaultVal: aerprep.DefaultLaneWidth,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Columns.FromNode",
			usage: `
              Columns.FromNode is the name of the link attribute holding the
              ID of the node the link starts at.`,
			defaultVal: aerprep.DefaultLinkColumns.FromNode,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Columns.ToNode",
			usage: `
              Columns.ToNode is the name of the link attribute holding the
              ID of the node the link ends at.`,
			defaultVal: aerprep.DefaultLinkColumns.ToNode,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Columns.Lanes",
			usage: `
              Columns.Lanes is the name of the link attribute holding the
              number of lanes.`,
			defaultVal: aerprep.DefaultLinkColumns.Lanes,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "ReceptorSpacing",
			usage: `
              ReceptorSpacing is the distance in meters between neighboring
              receptors along each source and in the background grid.`,
			defaultVal: aerprep.DefaultReceptorSpacing,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "ReceptorLayers",
			usage: `
              ReceptorLayers are the distances in meters from the edge of the
              road of each layer of near-road receptors.`,
			defaultVal: aerprep.DefaultReceptorLayers,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "ReceptorMode",
			usage: `
              ReceptorMode specifies how near-road receptors are placed.
              "layered" gives every source all ReceptorLayers; "density"
              gives sources with larger emission fluxes more layers.`,
			defaultVal: aerprep.LayeredMode,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "GridReceptors",
			usage: `
              GridReceptors specifies whether to add a regular grid of
              background receptors covering the study area.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Workers",
			usage: `
              Workers is the number of receptor partitions to check
              concurrently against the sources. If it is zero, the number
              of processors is used.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "WorkerTimeout",
			usage: `
              WorkerTimeout is how long to wait for receptor pruning to finish,
              for example "10s". Receptors in partitions that are not finished
              in time are kept without being checked.`,
			defaultVal: "10s",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "SourcesFile",
			usage: `
              SourcesFile is where the sources are saved as GeoJSON. If it
              already exists, the sources are read from it instead of being
              created from LinkGeometries and Emissions. It can be a local path
              or a blob storage location.`,
			defaultVal: "sources.geojson",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "ReceptorsFile",
			usage: `
              ReceptorsFile is where the receptors are saved as GeoJSON. If it
              already exists, the receptors are read from it instead of being
              created. It can be a local path or a blob storage location.`,
			defaultVal: "receptors.geojson",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "AERMOD.Title",
			usage: `
              AERMOD.Title is the prefix of the AERMOD control file names.`,
			defaultVal: "aerprep",
			flagsets:   []*pflag.FlagSet{aermodCmd.Flags()},
		},
		{
			name: "AERMOD.SourceGroupSize",
			usage: `
              AERMOD.SourceGroupSize is the number of sources in each AERMOD
              control file.`,
			defaultVal: aerprep.DefaultSourceGroupSize,
			flagsets:   []*pflag.FlagSet{aermodCmd.Flags()},
		},
		{
			name: "AERMOD.Population",
			usage: `
              AERMOD.Population is the urban population used by the
              AERMOD urban option.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{aermodCmd.Flags()},
		},
		{
			name: "AERMOD.Pollutant",
			usage: `
              AERMOD.Pollutant is the AERMOD pollutant name.`,
			defaultVal: "PM25",
			flagsets:   []*pflag.FlagSet{aermodCmd.Flags()},
		},
		{
			name: "AERMOD.Template",
			usage: `
              AERMOD.Template is the path to a Go text/template for the
              control files. It can use the fields Title, Pollutant, Population,
              SourceLocation, SourceParam, UrbanSource, ReceptorCoords, and
              PostFile. If it is empty, the control files only hold the source
              and receptor pathway records.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{aermodCmd.Flags()},
		},
		{
			name: "AERMOD.AERMETDir",
			usage: `
              AERMOD.AERMETDir is the local directory holding the AERMET
              outputs: AERMETSURFACE.SFC, AERMETUPPER.PFL, bestSurfaceStation.txt,
              bestUpperStation.txt, and bestSurfElev.txt. If it is set, the
              template can use the fields SurfaceFile, UpperAirFile, SurfaceStation,
              UpperAirStation, BaseElevation, Year, Month, and Day.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{aermodCmd.Flags()},
		},
		{
			name: "AERMOD.Day",
			usage: `
              AERMOD.Day is the day of the month that AERMOD is run for.
              The year and month are read from the AERMET profile file.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{aermodCmd.Flags()},
		},
		{
			name: "AERMOD.OutputDir",
			usage: `
              AERMOD.OutputDir is the directory the control files and the
              receptor file are written to. It can be a local path or a blob
              storage location.`,
			defaultVal: "aermod",
			flagsets:   []*pflag.FlagSet{aermodCmd.Flags()},
		},
		{
			name: "ExportDir",
			usage: `
              ExportDir is the directory that the sources.shp and
              receptors.shp shapefiles are written to. It can be a local path
              or a blob storage location.`,
			defaultVal: "shapefiles",
			flagsets:   []*pflag.FlagSet{exportCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("AERPREP")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case []float64:
				if option.shorthand == "" {
					set.Float64Slice(option.name, option.defaultVal.([]float64), option.usage)
				} else {
					set.Float64SliceP(option.name, option.shorthand, option.defaultVal.([]float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(sourcesCmd)
	Root.AddCommand(aermodCmd)
	Root.AddCommand(exportCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets up logging.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("aerprep: problem reading configuration file: %v", err)
		}
	}
	level, err := logrus.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("aerprep: invalid LogLevel: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "aerprep",
	Short: "Road source and receptor preparation for AERMOD.",
	Long: `AerPrep turns a road network with link emissions into AERMOD line
sources and a set of receptors around them.
Use the subcommands specified below to access the functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'AERPREP_var' where 'var' is the
name of the variable to be set, with any '.' replaced by '_'. Many configuration
variables are additionally allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of AerPrep.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("AerPrep v%s\n", aerprep.Version)
	},
	DisableAutoGenTag: true,
}

// sourcesCmd creates and saves the sources and receptors.
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Create the sources and receptors.",
	Long: `sources decomposes the emitting road links into line sources, places
receptors around them, and saves both to SourcesFile and ReceptorsFile.
Saved sources and receptors are reused rather than created again; delete
the files to start over.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := Run(context.Background(), Cfg)
		if err != nil {
			return err
		}
		cmd.Printf("%d sources and %d receptors\n", len(r.Sources.Sources), len(r.Receptors))
		return nil
	},
	DisableAutoGenTag: true,
}

// aermodCmd writes AERMOD control files.
var aermodCmd = &cobra.Command{
	Use:   "aermod",
	Short: "Write AERMOD control files.",
	Long: `aermod creates or loads the sources and receptors as the sources
command does and writes AERMOD control files for them to AERMOD.OutputDir:
one for every AERMOD.SourceGroupSize sources, plus a receptor file that they
all include.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		r, err := Run(ctx, Cfg)
		if err != nil {
			return err
		}
		a, err := Assembler(ctx, Cfg)
		if err != nil {
			return err
		}
		dir := os.ExpandEnv(Cfg.GetString("AERMOD.OutputDir"))
		names, err := a.Write(cloud.Creator(ctx, dir), r.Sources.Sources, r.Receptors)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"dir":   dir,
			"files": len(names),
		}).Info("wrote AERMOD control files")
		return nil
	},
	DisableAutoGenTag: true,
}

// exportCmd writes the sources and receptors as shapefiles.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the sources and receptors as shapefiles.",
	Long: `export creates or loads the sources and receptors as the sources
command does and writes them to sources.shp and receptors.shp in ExportDir.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		r, err := Run(ctx, Cfg)
		if err != nil {
			return err
		}
		return Export(ctx, os.ExpandEnv(Cfg.GetString("ExportDir")), os.ExpandEnv(Cfg.GetString("SR")), r)
	},
	DisableAutoGenTag: true,
}

// Export writes the sources and receptors in r as shapefiles in the
// directory at address dir, with the spatial reference srText.
func Export(ctx context.Context, dir, srText string, r *aerprep.Result) error {
	localDir := dir
	if cloud.IsBlob(dir) {
		var err error
		if localDir, err = ioutil.TempDir("", "aerprep_export"); err != nil {
			return fmt.Errorf("aerprep: creating temporary export directory: %v", err)
		}
		defer os.RemoveAll(localDir)
	} else if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("aerprep: creating export directory: %v", err)
	}
	sourcesFile := filepath.Join(localDir, "sources.shp")
	receptorsFile := filepath.Join(localDir, "receptors.shp")
	if err := aerprep.ExportSources(sourcesFile, srText, r.Sources.Sources); err != nil {
		return err
	}
	if err := aerprep.ExportReceptors(receptorsFile, srText, r.Receptors); err != nil {
		return err
	}
	if cloud.IsBlob(dir) {
		for _, f := range []string{sourcesFile, receptorsFile} {
			if err := cloud.CopyShapefile(ctx, f, dir); err != nil {
				return err
			}
		}
	}
	logrus.WithField("dir", dir).Info("exported shapefiles")
	return nil
}
