package driver

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/yarkm13/fetchopusd/internal/job"
	"github.com/yarkm13/fetchopusd/internal/session"
)

// Upload sends a local file or directory tree to target through d. A
// directory lands in target/<dirName>; empty directories are not created.
func Upload(d Driver, s *session.Session, localPath string, target job.FileLocation, sink ProgressSink) error {
	log.Infof("Transferring '%s' to '%s' on server ...", localPath, target.Path)
	if err := s.MarkInUse(); err != nil {
		return newError(ErrConnection, err, "cannot use session")
	}
	defer s.MarkNotInUse()
	sink = sinkOrNop(sink)

	source, err := filepath.Abs(localPath)
	if err != nil {
		return newError(ErrIO, err, "cannot resolve local path %s", localPath)
	}
	info, err := d.Fs().Stat(source)
	if os.IsNotExist(err) {
		return newError(ErrNotFound, err, "local path %s", localPath)
	} else if err != nil {
		return newError(ErrIO, err, "cannot stat local path %s", localPath)
	}

	if err := enterRemoteDirectory(d, s, target.Path); err != nil {
		return err
	}
	if !info.IsDir() {
		return d.UploadFile(s, source, target.Path, sink)
	}
	return uploadDirectory(d, s, source, JoinPath(target.Path, info.Name()), sink)
}

func enterRemoteDirectory(d Driver, s *session.Session, dir string) error {
	if err := d.MakeDirectory(s, dir); err != nil {
		return err
	}
	ok, err := d.ChangeDirectory(s, dir)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrTransfer, nil, "remote directory %s is not available", dir)
	}
	return nil
}

func uploadDirectory(d Driver, s *session.Session, localDir, remoteDir string, sink ProgressSink) error {
	log.Debugf("Upload the local directory '%s' content to the remote directory '%s'...", localDir, remoteDir)
	children, err := afero.ReadDir(d.Fs(), localDir)
	if err != nil {
		return newError(ErrIO, err, "cannot list local directory %s", localDir)
	}
	// The remote directory only exists once there is something to put in it.
	if len(children) == 0 {
		return nil
	}
	if err := enterRemoteDirectory(d, s, remoteDir); err != nil {
		return err
	}

	for _, child := range children {
		name := child.Name()
		switch {
		case name == "." || name == "..":
			log.Debugf("Ignoring '%s'.", name)
		case child.IsDir():
			if err := uploadDirectory(d, s, filepath.Join(localDir, name), JoinPath(remoteDir, name), sink); err != nil {
				return err
			}
		case child.Mode().IsRegular():
			if err := d.UploadFile(s, filepath.Join(localDir, name), remoteDir, sink); err != nil {
				return err
			}
		default:
			log.Debugf("Skipping special file '%s'.", filepath.Join(localDir, name))
		}
	}
	return nil
}

// Download mirrors source into localTargetPath. A single remote file lands
// directly in localTargetPath, a directory in localTargetPath/<dirName>.
func Download(d Driver, s *session.Session, source job.FileLocation, localTargetPath string, sink ProgressSink) error {
	log.Infof("Transferring '%s' from remote server to the local directory '%s' ...", source.Path, localTargetPath)
	if err := s.MarkInUse(); err != nil {
		return newError(ErrConnection, err, "cannot use session")
	}
	defer s.MarkNotInUse()
	sink = sinkOrNop(sink)

	targetDir, err := filepath.Abs(localTargetPath)
	if err != nil {
		return newError(ErrIO, err, "cannot resolve local path %s", localTargetPath)
	}
	if err := d.Fs().MkdirAll(targetDir, 0755); err != nil {
		return newError(ErrIO, err, "cannot create local directory %s", targetDir)
	}

	entries, err := d.List(s, source.Path, false)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return newError(ErrNotFound, nil, "cannot download an unexisting remote path '%s'", source.Path)
	}

	name := LastSegment(source.Path)
	if len(entries) == 1 && !entries[0].IsDir && entries[0].Name == name {
		return d.DownloadFile(s, source.Path, targetDir, sink)
	}
	return downloadDirectory(d, s, source.Path, filepath.Join(targetDir, name), sink)
}

func downloadDirectory(d Driver, s *session.Session, remoteDir, localDir string, sink ProgressSink) error {
	log.Debugf("Download the remote directory '%s' content into the local directory '%s'...", remoteDir, localDir)
	entries, err := d.List(s, remoteDir, false)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if err := d.Fs().MkdirAll(localDir, 0755); err != nil {
		return newError(ErrIO, err, "cannot create local directory %s", localDir)
	}

	for _, e := range entries {
		remotePath := JoinPath(remoteDir, e.Name)
		switch {
		case e.Name == "." || e.Name == "..":
			log.Debugf("Ignoring '%s'.", e.Name)
		case e.IsDir:
			if err := downloadDirectory(d, s, remotePath, filepath.Join(localDir, e.Name), sink); err != nil {
				return err
			}
		default:
			if err := d.DownloadFile(s, remotePath, localDir, sink); err != nil {
				return err
			}
		}
	}
	return nil
}
