package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-ntuple/pkg/blobstore"
	"github.com/ajitpratap0/nebula-ntuple/pkg/compression"
	"github.com/ajitpratap0/nebula-ntuple/pkg/config"
	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
	"github.com/ajitpratap0/nebula-ntuple/pkg/logger"
	"github.com/ajitpratap0/nebula-ntuple/pkg/lumifilter"
	"github.com/ajitpratap0/nebula-ntuple/pkg/metrics"
	"github.com/ajitpratap0/nebula-ntuple/pkg/ntuple"
	"github.com/ajitpratap0/nebula-ntuple/pkg/rowstore"
	"github.com/ajitpratap0/nebula-ntuple/pkg/selection"
)

// job is one input container processed into one output container.
type job struct {
	cfg    *config.BaseConfig
	store  blobstore.Store
	input  string
	output string
	log    *zap.Logger
}

// result summarizes a finished job.
type result struct {
	InputRows  int64
	OutputRows int64
	Keys       []string
}

func newJob(cfg *config.BaseConfig, store blobstore.Store, input, output string) *job {
	return &job{
		cfg:    cfg,
		store:  store,
		input:  input,
		output: output,
		log:    logger.With(logger.Job(cfg.Name), logger.Container(output)),
	}
}

// bind tags ctx with the job and output container and derives the job
// logger from it.
func (j *job) bind(ctx context.Context) context.Context {
	ctx = logger.NewContext(ctx, logger.JobIDKey, j.cfg.Name)
	ctx = logger.NewContext(ctx, logger.ContainerKey, j.output)
	j.log = logger.WithContext(ctx)
	return ctx
}

func (j *job) loadFilters() (*selection.Selection, *lumifilter.Filter, error) {
	var (
		sel    *selection.Selection
		filter *lumifilter.Filter
		err    error
	)
	if path := j.cfg.Filter.BranchSelection; path != "" {
		if sel, err = selection.Load(path); err != nil {
			return nil, nil, err
		}
	}
	if path := j.cfg.Filter.LumiJSON; path != "" {
		if filter, err = lumifilter.Load(path); err != nil {
			return nil, nil, err
		}
	}
	return sel, filter, nil
}

func (j *job) createOutput(ctx context.Context) (*rowstore.File, error) {
	tc, err := rowstore.ParseTreeCompression(j.cfg.Output.TreeCompression)
	if err != nil {
		return nil, err
	}
	oc, err := compression.ParseAlgorithm(j.cfg.Output.ObjectCompression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "object compression")
	}
	return rowstore.Create(ctx, j.store, j.output,
		rowstore.WithTreeCompression(tc),
		rowstore.WithObjectCompression(oc))
}

// passes reports whether the current entry of events survives the lumi filter.
func passes(events *rowstore.Tree, filter *lumifilter.Filter) (bool, error) {
	if filter == nil {
		return true, nil
	}
	run, err := events.Uint32(ntuple.RunBranch)
	if err != nil {
		return false, err
	}
	lumi, err := events.Uint32(ntuple.LumiBranch)
	if err != nil {
		return false, err
	}
	return filter.FilterRunLumi(run, lumi), nil
}

// runCopy clones the input tree with its bookkeeping into the output,
// keeping the events that pass the luminosity filter.
func (j *job) runCopy(ctx context.Context) (*result, error) {
	ctx = j.bind(ctx)
	in, err := rowstore.Open(ctx, j.store, j.input)
	if err != nil {
		return nil, err
	}
	defer in.Close(ctx) //nolint:errcheck
	events, err := in.GetTree(j.cfg.Output.Tree)
	if err != nil {
		return nil, err
	}
	sel, filter, err := j.loadFilters()
	if err != nil {
		return nil, err
	}

	outFile, err := j.createOutput(ctx)
	if err != nil {
		return nil, err
	}
	opts := []ntuple.FullOption{}
	if sel != nil {
		opts = append(opts, ntuple.WithBranchSelection(sel))
	}
	if filter != nil {
		opts = append(opts, ntuple.WithRowFilter(filter))
	}
	if j.cfg.Output.Provenance {
		opts = append(opts, ntuple.WithProvenance())
	}
	fullClone := j.cfg.Output.FullClone && filter == nil
	if fullClone {
		opts = append(opts, ntuple.WithFullClone())
	} else if j.cfg.Output.FullClone {
		j.log.Warn("full clone ignored because a luminosity filter is set")
	}

	out, err := ntuple.NewFullOutput(in, events, outFile, opts...)
	if err != nil {
		return nil, err
	}

	if !fullClone {
		tracker := metrics.NewThroughputTracker(events.Name())
		for i := int64(0); i < events.Entries(); i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := events.GetEntry(i); err != nil {
				return nil, err
			}
			ok, err := passes(events, filter)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if err := out.Fill(); err != nil {
				return nil, err
			}
			tracker.Increment(1)
		}
		tracker.GetAndReset()
	}

	if err := out.Write(); err != nil {
		return nil, err
	}
	if err := outFile.Close(ctx); err != nil {
		return nil, err
	}
	res := &result{InputRows: events.Entries(), OutputRows: out.Tree().Entries(), Keys: keyNames(outFile)}
	j.log.Info("copy finished",
		zap.String("input", j.input),
		zap.Int64("input_rows", res.InputRows),
		zap.Int64("output_rows", res.OutputRows),
		zap.Strings("keys", res.Keys))
	return res, nil
}

// runFriend writes a friend tree holding the input entry number of every
// row and, with a luminosity filter, whether the row passes it.
func (j *job) runFriend(ctx context.Context) (*result, error) {
	ctx = j.bind(ctx)
	in, err := rowstore.Open(ctx, j.store, j.input)
	if err != nil {
		return nil, err
	}
	defer in.Close(ctx) //nolint:errcheck
	events, err := in.GetTree(j.cfg.Output.Tree)
	if err != nil {
		return nil, err
	}
	_, filter, err := j.loadFilters()
	if err != nil {
		return nil, err
	}

	outFile, err := j.createOutput(ctx)
	if err != nil {
		return nil, err
	}
	friend, err := ntuple.NewFriendOutput(events, outFile, j.cfg.Output.FriendName)
	if err != nil {
		return nil, err
	}
	if _, err := friend.Branch("entry", rowstore.Uint64.Code(), ntuple.WithTitle("entry number in "+events.Name())); err != nil {
		return nil, err
	}
	if filter != nil {
		if _, err := friend.Branch("passLumi", rowstore.Bool.Code()); err != nil {
			return nil, err
		}
	}

	for i := int64(0); i < events.Entries(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := events.GetEntry(i); err != nil {
			return nil, err
		}
		if err := friend.FillBranch("entry", i); err != nil {
			return nil, err
		}
		if filter != nil {
			ok, err := passes(events, filter)
			if err != nil {
				return nil, err
			}
			if err := friend.FillBranch("passLumi", ok); err != nil {
				return nil, err
			}
		}
		if err := friend.Fill(); err != nil {
			return nil, err
		}
	}

	if err := friend.Write(); err != nil {
		return nil, err
	}
	if err := outFile.Close(ctx); err != nil {
		return nil, err
	}
	res := &result{InputRows: events.Entries(), OutputRows: friend.Tree().Entries(), Keys: keyNames(outFile)}
	j.log.Info("friend finished",
		zap.String("input", j.input),
		logger.Tree(friend.Tree().Name()),
		zap.Int64("rows", res.OutputRows))
	return res, nil
}

func keyNames(f *rowstore.File) []string {
	keys := f.Keys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.Name
	}
	return names
}
