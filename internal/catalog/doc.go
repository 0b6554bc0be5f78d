// Package catalog downloads every episode of a show from a catalog site.
//
// Episode pages live at "<base>-<n>". The flow probes them in order until
// one shows the site's not-found page, scrapes each page for the download
// page link and stream id, posts the captcha form to get the list of
// files, and picks the 720P link. Downloads run in the background with
// bounded concurrency while probing continues.
package catalog
