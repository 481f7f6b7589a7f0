// Package cmd implements the fluxtoimd command-line orchestrator: it reads
// a flux capture, runs every track through the decoder, and writes the
// recovered sectors to an ImageDisk container.
package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/brouhaha/fluxtoimd/config"
	"github.com/brouhaha/fluxtoimd/decoder"
	"github.com/brouhaha/fluxtoimd/fluximage"
	"github.com/brouhaha/fluxtoimd/imagedisk"
	"github.com/brouhaha/fluxtoimd/modulation"
)

var (
	flagFM, flagMFM, flagIntelM2FM, flagHPM2FM bool
	flagFormat                                 string
	flagSides                                  int
	flagTracks                                 int
	flagFrequencyMHz                           float64
	flagBitRateKbps                            int
	flagRequireIndex                           bool
	flagVerbose                                bool
	flagConfigPath                             string
)

var progress = log.New(os.Stdout, "", 0)

var rootCmd = &cobra.Command{
	Use:   "fluxtoimd INPUT OUTPUT.imd",
	Short: "Recover sectors from a raw flux capture into an ImageDisk image",
	Long:  "fluxtoimd demodulates a raw flux capture (DFI, KryoFlux stream, or SuperCard Pro) and writes the recovered sectors to an ImageDisk (.imd) container.",
	Args:  cobra.ExactArgs(2),
	RunE:  runFluxToIMD,
}

func init() {
	rootCmd.Flags().BoolVar(&flagFM, "fm", false, "FM (single density) modulation")
	rootCmd.Flags().BoolVar(&flagMFM, "mfm", false, "IBM MFM (double density) modulation")
	rootCmd.Flags().BoolVar(&flagIntelM2FM, "intelm2fm", false, "Intel M2FM modulation")
	rootCmd.Flags().BoolVar(&flagHPM2FM, "hpm2fm", false, "HP M2FM modulation")

	rootCmd.Flags().StringVarP(&flagFormat, "format", "F", "dfi", "capture format: dfi, ksf, or scp")
	rootCmd.Flags().IntVarP(&flagSides, "sides", "s", 2, "number of sides (1 or 2)")
	rootCmd.Flags().IntVarP(&flagTracks, "tracks", "t", 77, "number of tracks")
	rootCmd.Flags().Float64VarP(&flagFrequencyMHz, "frequency", "f", 0, "capture sample rate in MHz (DFI only; 0 = format default)")
	rootCmd.Flags().IntVarP(&flagBitRateKbps, "bitrate", "b", 0, "override bit rate in kbps (0 = modulation default)")
	rootCmd.Flags().BoolVar(&flagRequireIndex, "index", false, "require an index address mark before decoding a track")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "print a per-sector progress summary")
	rootCmd.Flags().StringVar(&flagConfigPath, "config", "", "path to a fluxtoimd.toml override file")
}

// Execute runs the root command.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func selectedModulation() (*modulation.Descriptor, string, error) {
	selected := []string{}
	if flagFM {
		selected = append(selected, "fm")
	}
	if flagMFM {
		selected = append(selected, "mfm")
	}
	if flagIntelM2FM {
		selected = append(selected, "intelm2fm")
	}
	if flagHPM2FM {
		selected = append(selected, "hpm2fm")
	}
	switch len(selected) {
	case 0:
		selected = []string{"fm"}
	case 1:
	default:
		return nil, "", fmt.Errorf("only one of --fm, --mfm, --intelm2fm, --hpm2fm may be given")
	}
	desc, ok := modulation.ByName(selected[0])
	if !ok {
		return nil, "", fmt.Errorf("unknown modulation %q", selected[0])
	}
	return desc, selected[0], nil
}

func openCaptureImage(path, format string, frequencyHz float64) (*fluximage.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture file: %w", err)
	}
	defer f.Close()

	switch format {
	case "dfi":
		if frequencyHz == 0 {
			frequencyHz = fluximage.DefaultDFIFrequency
		}
		return fluximage.ReadDFI(f, frequencyHz)
	case "ksf":
		fi, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("statting capture file: %w", err)
		}
		return fluximage.ReadKFSF(f, fi.Size())
	case "scp":
		fi, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("statting capture file: %w", err)
		}
		return fluximage.ReadSCP(f, fi.Size())
	default:
		return nil, fmt.Errorf("unknown capture format %q (want dfi, ksf, or scp)", format)
	}
}

type summary struct {
	normal, deleted, missing int
}

type cliLogger struct{ verbose bool }

func (l cliLogger) Reject(cylinder, head int, reason string) {
	if l.verbose {
		fmt.Printf("\n  reject cyl=%d head=%d: %s", cylinder, head, reason)
	}
}

func runFluxToIMD(cmd *cobra.Command, args []string) error {
	inputPath, outputPath := args[0], args[1]

	desc, modName, err := selectedModulation()
	if err != nil {
		return err
	}

	conf, err := config.Load(flagConfigPath)
	if err != nil {
		return err
	}
	override := conf.For(modName)

	bitRate := desc.DefaultBitRateKbps
	if flagBitRateKbps != 0 {
		bitRate = flagBitRateKbps
	} else if override.BitRateKbps != 0 {
		bitRate = override.BitRateKbps
	}

	frequencyHz := 0.0
	if flagFrequencyMHz != 0 {
		frequencyHz = flagFrequencyMHz * 1e6
	} else if conf.DFIFrequencyHz != 0 {
		frequencyHz = conf.DFIFrequencyHz
	}

	img, err := openCaptureImage(inputPath, flagFormat, frequencyHz)
	if err != nil {
		return err
	}

	out := imagedisk.New(time.Now())
	logger := cliLogger{verbose: flagVerbose}
	oscPeriod := decoder.OscPeriod(bitRate)
	requireIndex := flagRequireIndex && modName != "hpm2fm"
	sectorsPerTrack := desc.DefaultSectorsPerTrack
	if override.SectorsPerTrack != 0 {
		sectorsPerTrack = override.SectorsPerTrack
	}

	var total summary
	for track := 0; track < flagTracks; track++ {
		for head := 0; head < flagSides; head++ {
			var sectors []decoder.Sector
			if block, ok := img.Block(track, head); ok {
				sectors = decoder.DecodeTrack(block, desc, oscPeriod, decoder.DefaultTuning, track, head, requireIndex, logger)
			}
			if n := sectorsPerTrack - len(sectors); n > 0 {
				total.missing += n
				if flagVerbose {
					fmt.Print(strings.Repeat("*", n))
				}
			}
			for _, s := range sectors {
				if err := out.WriteSector(desc.ImageDiskMode, track, head, s.Number, s.Data, s.Deleted, false); err != nil {
					return fmt.Errorf("recording sector cyl=%d head=%d sector=%d: %w", track, head, s.Number, err)
				}
				if s.Deleted {
					total.deleted++
					if flagVerbose {
						fmt.Print("D")
					}
				} else {
					total.normal++
					if flagVerbose {
						fmt.Print(".")
					}
				}
			}
		}
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer outFile.Close()
	if err := out.Write(outFile); err != nil {
		return fmt.Errorf("writing IMD container: %w", err)
	}

	if flagVerbose {
		fmt.Println()
	}
	progress.Printf("recovered %d data sectors, %d deleted, %d missing/bad", total.normal, total.deleted, total.missing)
	return nil
}
