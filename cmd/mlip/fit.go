package main

import (
	"fmt"
	"log"
	"math/rand"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/born-ml/mlip/internal/serialization"
	"github.com/born-ml/mlip/internal/train"
)

func newFitCmd() *cobra.Command {
	var (
		model    modelFlags
		epochs   int
		logEvery int
		outPath  string
	)
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Train the model on a synthetic pair-potential dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, eng, p, err := model.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("epochs") {
				file.Train.Epochs = epochs
			}

			logger := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
			syn := file.Synthetic()
			pm := train.NewPairModel(syn.NumTypes, syn.Cutoff)
			data := train.Synthetic(syn, pm, rand.New(rand.NewSource(file.Seed+1)))
			logger.Printf("dataset: %d environments, descriptor length %d, %d parameters",
				len(data), eng.DescriptorLen(), p.NumParams())

			loss := train.NewLoss(eng, file.Train.LossConfig())
			st, err := train.Fit(cmd.Context(), loss, data, p, file.Train.NewOptimizer(), train.FitConfig{
				Epochs: file.Train.Epochs,
				Every: func(epoch int, st train.Stats) {
					if logEvery > 0 && epoch%logEvery == 0 {
						logger.Printf("epoch %4d  loss %.6e  energy rmse %.4e  force rmse %.4e",
							epoch, st.Loss, st.EnergyRMSE, st.ForceRMSE)
					}
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "final loss %.6e  energy rmse %.4e  force rmse %.4e\n",
				st.Loss, st.EnergyRMSE, st.ForceRMSE)

			if outPath == "" {
				return nil
			}
			meta := map[string]string{
				"policy": file.Engine.Descriptor.Policy.String(),
				"epochs": strconv.Itoa(file.Train.Epochs),
				"loss":   strconv.FormatFloat(st.Loss, 'g', -1, 64),
			}
			if err := serialization.SaveFile(outPath, p.StateDict(file.Engine.Descriptor.NumTypes), meta); err != nil {
				return err
			}
			logger.Printf("parameters written to %s", outPath)
			return nil
		},
	}
	model.register(cmd)
	cmd.Flags().IntVar(&epochs, "epochs", 0, "training epochs, overrides the config file")
	cmd.Flags().IntVar(&logEvery, "log-every", 10, "log statistics every N epochs, 0 to disable")
	cmd.Flags().StringVar(&outPath, "out", "", "write trained parameters to this SafeTensors file")
	return cmd
}
