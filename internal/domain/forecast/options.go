package forecast

import (
	"github.com/okian/admitcast/internal/domain/classifier"
	"github.com/okian/admitcast/pkg/logger"
)

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithClassifierOptions appends options used for every training run.
func WithClassifierOptions(opts ...classifier.Option) Option {
	return func(p *Pipeline) {
		p.classifierOpts = append(p.classifierOpts, opts...)
	}
}
