package config

import (
	"fmt"
	"net/url"
)

// Validate checks field values and returns the first problem found.
func (c *Config) Validate() error {
	if c.Site.ListingURL != "" {
		u, err := url.Parse(c.Site.ListingURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("site.listing_url: %q is not an absolute URL", c.Site.ListingURL)
		}
	}

	switch c.Downloads.Root {
	case RootDefault, RootDesktop, RootDocuments, RootMusic:
	case RootCustom:
		if c.Downloads.CustomRoot == "" {
			return fmt.Errorf("downloads.custom_root: required when root is %q", RootCustom)
		}
	default:
		return fmt.Errorf("downloads.root: unknown value %q", c.Downloads.Root)
	}

	switch c.Downloads.Naming {
	case NamingTitleID, NamingIDTitle, NamingTitleOnly, NamingIDOnly:
	default:
		return fmt.Errorf("downloads.naming: unknown value %q", c.Downloads.Naming)
	}

	if c.Downloads.Folder == "" {
		return fmt.Errorf("downloads.folder: must not be empty")
	}
	if c.Downloads.DelaySeconds < 0 {
		return fmt.Errorf("downloads.delay_seconds: must not be negative")
	}
	return nil
}
