package screen

import "github.com/example/selfie-check/internal/notify"

// RenderUpload maps an upload outcome to toasts. Skipped uploads stay silent.
func RenderUpload(r notify.Renderer, c *notify.Catalog, o UploadOutcome) {
	switch o.Status {
	case Succeeded:
		r.Notify(c.Notice(notify.LevelSuccess, notify.UploadSuccess))
	case Failed:
		r.Notify(c.Notice(notify.LevelError, notify.UploadFailure))
	}
}

// RenderVerify maps a verification outcome to toasts and navigation. Only failures navigate;
// a result is presented as a link by the view.
func RenderVerify(r notify.Renderer, c *notify.Catalog, o VerifyOutcome) {
	if o.Status == Failed {
		r.Notify(c.Notice(notify.LevelError, notify.VerifyFailure))
		r.Navigate(notify.Navigation{Route: c.Routes.Error})
	}
}

// RenderFetch maps a fetch outcome to toasts.
func RenderFetch(r notify.Renderer, c *notify.Catalog, o FetchOutcome) {
	switch o.Status {
	case Succeeded:
		r.Notify(c.Notice(notify.LevelSuccess, notify.FetchSuccess))
	case Failed:
		r.Notify(c.Notice(notify.LevelError, notify.FetchFailure))
	}
}
